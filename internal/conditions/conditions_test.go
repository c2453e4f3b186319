package conditions

import (
	"testing"
)

func TestEvaluateScalarComparison(t *testing.T) {
	facts := Facts{"os_vers_major": int64(14), "machine_type": "laptop"}

	ok, err := Evaluate(`os_vers_major >= 14 and machine_type == "laptop"`, facts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected condition to hold")
	}

	ok, err = Evaluate(`os_vers_major >= 15`, facts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Fatal("expected condition to fail")
	}
}

func TestEvaluateCatalogsMembership(t *testing.T) {
	facts := Facts{"catalogs": []string{"production", "testing"}}

	ok, err := Evaluate(`contains(catalogs, "testing")`, facts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected membership to hold")
	}

	ok, err = Evaluate(`contains(catalogs, "development")`, facts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Fatal("expected membership to fail")
	}
}

func TestEvaluateStringOperations(t *testing.T) {
	facts := Facts{"hostname": "mac01.corp.example"}
	ok, err := Evaluate(`string.find(hostname, "corp", 1, true) ~= nil`, facts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected substring match")
	}
}

func TestEvaluateMalformedCondition(t *testing.T) {
	if _, err := Evaluate(`this is not lua ===`, Facts{}); err == nil {
		t.Fatal("expected error for malformed condition")
	}
	if _, err := Evaluate("", Facts{}); err == nil {
		t.Fatal("expected error for empty condition")
	}
}

func TestEvaluateUndefinedFactIsFalse(t *testing.T) {
	// Unknown globals are nil in Lua; comparisons against them are false
	// rather than errors, matching the forgiving predicate behaviour.
	ok, err := Evaluate(`missing_fact == "x"`, Facts{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Fatal("expected false for undefined fact comparison")
	}
}
