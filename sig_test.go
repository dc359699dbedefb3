package dbus

import (
	"reflect"
	"testing"
)

var sigTests = []struct {
	vs  []interface{}
	sig Signature
}{
	{
		[]interface{}{new(int32)},
		Signature{"i"},
	},
	{
		[]interface{}{new(Variant), new([]map[int32]string)},
		Signature{"vaa{is}"},
	},
	{
		[]interface{}{new(byte), new(bool), new(string), new(ObjectPath), new(Signature)},
		Signature{"ybsog"},
	},
}

func TestSig(t *testing.T) {
	for i, v := range sigTests {
		sig := SignatureOf(v.vs...)
		if sig != v.sig {
			t.Errorf("test %d: got %q, expected %q", i+1, sig.str, v.sig.str)
		}
		svs := v.sig.Values()
		if len(svs) != len(v.vs) {
			t.Errorf("test %d: got %d values, expected %d", i+1, len(svs), len(v.vs))
			continue
		}
		for j := range svs {
			if t1, t2 := reflect.TypeOf(svs[j]), reflect.TypeOf(v.vs[j]); t1 != t2 {
				t.Errorf("test %d: got %s, expected %s", i+1, t1, t2)
			}
		}
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	sigs := []string{
		"", "y", "b", "ii", "as", "a{ss}", "(isb)", "a(ii)", "v",
		"a{sv}", "(ai(s)v)", "aay", "ho",
	}
	for _, s := range sigs {
		sig, err := ParseSignature(s)
		if err != nil {
			t.Errorf("ParseSignature(%q): unexpected error: %v", s, err)
			continue
		}
		if sig.String() != s {
			t.Errorf("ParseSignature(%q).String() = %q, want %q", s, sig.String(), s)
		}
	}
}

func TestParseSignatureInvalid(t *testing.T) {
	bad := []string{
		"(", ")", "(i", "a{i}", "a{iii}", "{is}", "z", "a{vs}", "()",
	}
	for _, s := range bad {
		if _, err := ParseSignature(s); err == nil {
			t.Errorf("ParseSignature(%q): expected error, got none", s)
		}
	}
}

func TestSignatureTooLong(t *testing.T) {
	long := make([]byte, maxSignature+1)
	for i := range long {
		long[i] = 'y'
	}
	if _, err := ParseSignature(string(long)); err == nil {
		t.Errorf("ParseSignature: expected error for signature longer than %d", maxSignature)
	}
}

func TestSignatureDepthLimits(t *testing.T) {
	deep := ""
	for i := 0; i < maxStructDepth+1; i++ {
		deep += "("
	}
	deep += "i"
	for i := 0; i < maxStructDepth+1; i++ {
		deep += ")"
	}
	if _, err := ParseSignature(deep); err == nil {
		t.Errorf("ParseSignature: expected error for struct nesting past %d", maxStructDepth)
	}

	deepArr := ""
	for i := 0; i < maxArrayDepth+1; i++ {
		deepArr += "a"
	}
	deepArr += "i"
	if _, err := ParseSignature(deepArr); err == nil {
		t.Errorf("ParseSignature: expected error for array nesting past %d", maxArrayDepth)
	}
}

func TestSignatureSingle(t *testing.T) {
	single, err := ParseSignature("i")
	if err != nil {
		t.Fatal(err)
	}
	if !single.Single() {
		t.Error("expected single signature 'i' to report Single() == true")
	}
	multi, err := ParseSignature("ii")
	if err != nil {
		t.Fatal(err)
	}
	if multi.Single() {
		t.Error("expected signature 'ii' to report Single() == false")
	}
}
