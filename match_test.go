package dbus

import "testing"

func TestMatchRuleString(t *testing.T) {
	r := NewMatchRule(
		WithMatchType("signal"),
		WithMatchSender("org.freedesktop.DBus"),
		WithMatchInterface("org.freedesktop.DBus"),
		WithMatchMember("NameOwnerChanged"),
	)
	want := "type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged'"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMatchRuleStringEscapesQuotes(t *testing.T) {
	r := NewMatchRule(WithMatchArg(0, "o'brien"))
	got := r.String()
	want := `arg0='o'\''brien'`
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMatchRuleMatches(t *testing.T) {
	sig := &Signal{
		Sender: "org.freedesktop.DBus",
		Path:   "/org/freedesktop/DBus",
		Name:   "org.freedesktop.DBus.NameOwnerChanged",
		Body:   []interface{}{"com.example.Foo", "", ":1.1"},
	}

	tcs := []struct {
		name string
		rule MatchRule
		want bool
	}{
		{"matches type+interface+member", NewMatchRule(WithMatchType("signal"), WithMatchInterface("org.freedesktop.DBus"), WithMatchMember("NameOwnerChanged")), true},
		{"wrong member", NewMatchRule(WithMatchMember("NameLost")), false},
		{"wrong sender", NewMatchRule(WithMatchSender("org.example")), false},
		{"matching arg0", NewMatchRule(WithMatchArg(0, "com.example.Foo")), true},
		{"non-matching arg0", NewMatchRule(WithMatchArg(0, "com.example.Bar")), false},
		{"path namespace match", NewMatchRule(WithMatchPathNamespace("/org/freedesktop")), true},
		{"path namespace no match", NewMatchRule(WithMatchPathNamespace("/com/example")), false},
		{"arg0namespace match", NewMatchRule(WithMatchArg0Namespace("com.example")), true},
		{"arg0namespace no match", NewMatchRule(WithMatchArg0Namespace("org.other")), false},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.Matches(sig); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPathIsOrUnder(t *testing.T) {
	tcs := []struct {
		p, ns ObjectPath
		want  bool
	}{
		{"/org/freedesktop/DBus", "/org/freedesktop", true},
		{"/org/freedesktop", "/org/freedesktop", true},
		{"/org/freedesktopX", "/org/freedesktop", false},
		{"/org", "/", true},
	}
	for _, tc := range tcs {
		if got := pathIsOrUnder(tc.p, tc.ns); got != tc.want {
			t.Errorf("pathIsOrUnder(%q, %q) = %v, want %v", tc.p, tc.ns, got, tc.want)
		}
	}
}
