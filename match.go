package dbus

import (
	"strconv"
	"strings"
)

// MatchRule is a subscription predicate: a set of key=value constraints
// the bus conjunctively applies to route signals. Matches evaluates a rule
// against a Signal locally; Conn's dispatcher does not apply rules and hands
// every received signal to every channel registered with Conn.Signal.
type MatchRule struct {
	Type          string
	Sender        string
	Interface     string
	Member        string
	Path          ObjectPath
	PathNamespace ObjectPath
	Destination   string
	Arg0Namespace string
	Args          map[int]string
	ArgPaths      map[int]string
}

// MatchOption mutates a MatchRule under construction; see the With* helpers
// below. Modeled as functional options so zero-value fields of MatchRule
// never need to be distinguished from "not set".
type MatchOption func(*MatchRule)

func WithMatchType(t string) MatchOption {
	return func(r *MatchRule) { r.Type = t }
}

func WithMatchSender(s string) MatchOption {
	return func(r *MatchRule) { r.Sender = s }
}

func WithMatchInterface(i string) MatchOption {
	return func(r *MatchRule) { r.Interface = i }
}

func WithMatchMember(m string) MatchOption {
	return func(r *MatchRule) { r.Member = m }
}

func WithMatchObjectPath(p ObjectPath) MatchOption {
	return func(r *MatchRule) { r.Path = p }
}

func WithMatchPathNamespace(p ObjectPath) MatchOption {
	return func(r *MatchRule) { r.PathNamespace = p }
}

func WithMatchDestination(d string) MatchOption {
	return func(r *MatchRule) { r.Destination = d }
}

func WithMatchArg0Namespace(ns string) MatchOption {
	return func(r *MatchRule) { r.Arg0Namespace = ns }
}

// WithMatchArg restricts the rule to signals whose N-th body element is a
// string equal to the value given.
func WithMatchArg(n int, value string) MatchOption {
	return func(r *MatchRule) {
		if r.Args == nil {
			r.Args = make(map[int]string)
		}
		r.Args[n] = value
	}
}

// WithMatchArgPath restricts the rule to signals whose N-th body element is
// an object path equal to or descending under value (argNpath).
func WithMatchArgPath(n int, value string) MatchOption {
	return func(r *MatchRule) {
		if r.ArgPaths == nil {
			r.ArgPaths = make(map[int]string)
		}
		r.ArgPaths[n] = value
	}
}

// NewMatchRule builds a MatchRule from a list of options.
func NewMatchRule(options ...MatchOption) MatchRule {
	var r MatchRule
	for _, opt := range options {
		opt(&r)
	}
	return r
}

// String serializes the rule into the comma-joined, single-quoted form the
// bus's AddMatch/RemoveMatch methods expect, escaping embedded quotes the
// way dbus-daemon does: close the quote, emit an escaped quote, reopen it.
func (r MatchRule) String() string {
	var kvs []string
	add := func(key, value string) {
		if value != "" {
			kvs = append(kvs, key+"='"+escapeMatchValue(value)+"'")
		}
	}
	add("type", r.Type)
	add("sender", r.Sender)
	add("interface", r.Interface)
	add("member", r.Member)
	if r.Path != "" {
		add("path", string(r.Path))
	}
	if r.PathNamespace != "" {
		add("path_namespace", string(r.PathNamespace))
	}
	add("destination", r.Destination)
	add("arg0namespace", r.Arg0Namespace)
	for n := 0; n < 64; n++ {
		if v, ok := r.Args[n]; ok {
			add("arg"+strconv.Itoa(n), v)
		}
		if v, ok := r.ArgPaths[n]; ok {
			add("arg"+strconv.Itoa(n)+"path", v)
		}
	}
	return strings.Join(kvs, ",")
}

func escapeMatchValue(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// Matches reports whether sig satisfies every predicate in r.
func (r MatchRule) Matches(sig *Signal) bool {
	if r.Type != "" && r.Type != "signal" {
		return false
	}
	if r.Sender != "" && r.Sender != sig.Sender {
		return false
	}
	if r.Interface != "" || r.Member != "" {
		iface, member := splitSignalName(sig.Name)
		if r.Interface != "" && r.Interface != iface {
			return false
		}
		if r.Member != "" && r.Member != member {
			return false
		}
	}
	if r.Path != "" && r.Path != sig.Path {
		return false
	}
	if r.PathNamespace != "" && !pathIsOrUnder(sig.Path, r.PathNamespace) {
		return false
	}
	if r.Arg0Namespace != "" {
		if len(sig.Body) == 0 {
			return false
		}
		s, ok := sig.Body[0].(string)
		if !ok || !(s == r.Arg0Namespace || strings.HasPrefix(s, r.Arg0Namespace+".")) {
			return false
		}
	}
	for n, want := range r.Args {
		if n >= len(sig.Body) {
			return false
		}
		s, ok := sig.Body[n].(string)
		if !ok || s != want {
			return false
		}
	}
	for n, want := range r.ArgPaths {
		if n >= len(sig.Body) {
			return false
		}
		var p ObjectPath
		switch v := sig.Body[n].(type) {
		case string:
			p = ObjectPath(v)
		case ObjectPath:
			p = v
		default:
			return false
		}
		if !pathIsOrUnder(p, ObjectPath(want)) {
			return false
		}
	}
	return true
}

func splitSignalName(name string) (iface, member string) {
	i := strings.LastIndexByte(name, '.')
	if i == -1 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// pathIsOrUnder reports whether p equals ns or descends under it, the
// matching rule path_namespace uses.
func pathIsOrUnder(p, ns ObjectPath) bool {
	if p == ns {
		return true
	}
	prefix := string(ns)
	if prefix != "/" {
		prefix += "/"
	}
	return strings.HasPrefix(string(p), prefix)
}
