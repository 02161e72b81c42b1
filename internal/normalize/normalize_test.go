package normalize

import (
	"strings"
	"testing"
)

func TestNameStripsApostropheSuffix(t *testing.T) {
	cases := map[string]string{
		"Ahmet Yıldırım'ın açıklaması":       "Ahmet Yıldırım",
		"Ahmet Yıldırım’ın açıklaması":  "Ahmet Yıldırım",
		"Ahmet Yıldırım‛ın açıklaması":  "Ahmet Yıldırım",
		"Ahmet Yıldırım`ın açıklaması":       "Ahmet Yıldırım",
		"Mehmet Ali, ek bilgi":               "Mehmet Ali",
		"Mehmet Ali; ek bilgi":               "Mehmet Ali",
		"  Mehmet   Ali  ":                   "Mehmet Ali",
		"Ahmet Yıldırım":                     "Ahmet Yıldırım",
		"":                                   "",
		"   ":                                "",
		"Name'in sözü, devamı; daha fazlası": "Name",
	}
	for raw, want := range cases {
		if got := Name(raw); got != want {
			t.Errorf("Name(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNameApostropheBeforeComma(t *testing.T) {
	// The comma sits inside the appended clause; apostrophe splitting must
	// run first so no fragment of the clause survives.
	got := Name("Ayşe Kaya'nın, gündem dışı açıklaması")
	if got != "Ayşe Kaya" {
		t.Errorf("got %q, want %q", got, "Ayşe Kaya")
	}
}

func TestNameIsProjection(t *testing.T) {
	inputs := []string{
		"Ahmet Yıldırım'ın açıklaması",
		"Mehmet Ali, ek bilgi",
		"  çoklu   boşluk  ",
		"Düz Ad",
		"",
	}
	for _, raw := range inputs {
		once := Name(raw)
		if twice := Name(once); twice != once {
			t.Errorf("Name not a projection for %q: %q != %q", raw, twice, once)
		}
	}
}

func TestLowerTurkishCasing(t *testing.T) {
	if got := Lower("İSTANBUL"); got != "istanbul" {
		t.Errorf("Lower(İSTANBUL) = %q", got)
	}
	if got := Lower("ILICA"); got != "ılıca" {
		t.Errorf("Lower(ILICA) = %q", got)
	}
}

func TestIsSuspect(t *testing.T) {
	if IsSuspect("Ahmet Yıldırım", 0) {
		t.Error("short name flagged as suspect")
	}
	long := strings.Repeat("a", DefaultMaxNameLength+1)
	if !IsSuspect(long, 0) {
		t.Error("overlong name not flagged")
	}
	// exactly at the threshold is fine
	edge := strings.Repeat("a", DefaultMaxNameLength)
	if IsSuspect(edge, 0) {
		t.Error("name at threshold flagged as suspect")
	}
	// rune length, not byte length
	turkish := strings.Repeat("ı", DefaultMaxNameLength)
	if IsSuspect(turkish, 0) {
		t.Error("multibyte name at threshold flagged as suspect")
	}
}

func TestContainsConjunction(t *testing.T) {
	cases := map[string]bool{
		"Ahmet Yılmaz ve Mehmet Ali":  true,
		"Ad ile Soyad Milletvekili":   true,
		"Ahmet VE Mehmet":             true,
		"Ahmet İLE Mehmet":            true, // dotted capital İ folds to i
		"Vedat Yılmaz":                false,
		"İlhan Kesici":                false,
		"":                            false,
	}
	for name, want := range cases {
		if got := ContainsConjunction(name); got != want {
			t.Errorf("ContainsConjunction(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSuspectReasons(t *testing.T) {
	long := strings.Repeat("x", 50) + " ve devamı"
	reasons := SuspectReasons(long, 45)
	if len(reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", reasons)
	}
	if reasons[0] != "length=60" {
		t.Errorf("unexpected length reason: %q", reasons[0])
	}
	if reasons[1] != "contains_conjunction" {
		t.Errorf("unexpected reason: %q", reasons[1])
	}
	if got := SuspectReasons("Ahmet Yıldırım", 45); got != nil {
		t.Errorf("clean name produced reasons: %v", got)
	}
}
