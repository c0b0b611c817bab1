package normalize

import "testing"

func TestRateTable_Convert(t *testing.T) {
	table := NewRateTable("USD", map[string]float64{
		"EUR": 1.10,
		"GBP": 1.25,
	})

	if got := table.Canonical(); got != "USD" {
		t.Fatalf("Canonical() = %s, want USD", got)
	}

	price, ok := table.Convert(100, "EUR")
	if !ok {
		t.Fatal("EUR should be convertible")
	}
	if price != 110 {
		t.Errorf("Convert(100, EUR) = %v, want 110", price)
	}

	price, ok = table.Convert(42.50, "USD")
	if !ok || price != 42.50 {
		t.Errorf("Canonical currency should convert at 1.0, got %v (%v)", price, ok)
	}
}

func TestRateTable_UnknownCurrency(t *testing.T) {
	table := NewRateTable("USD", map[string]float64{"EUR": 1.10})

	if _, ok := table.Convert(100, "JPY"); ok {
		t.Error("Unknown currency must not convert")
	}
	if _, ok := table.Convert(100, ""); ok {
		t.Error("Empty currency must not convert")
	}
}

func TestRateTable_DoesNotAliasInput(t *testing.T) {
	rates := map[string]float64{"EUR": 1.10}
	table := NewRateTable("USD", rates)

	rates["EUR"] = 99

	price, ok := table.Convert(100, "EUR")
	if !ok || price != 110 {
		t.Errorf("Table must copy the rate map, got %v (%v)", price, ok)
	}
}
