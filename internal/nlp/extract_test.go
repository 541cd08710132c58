package nlp

import "testing"

func TestExtractIdentityFactors_LabeledEverything(t *testing.T) {
	f := ExtractIdentityFactors("pedido #12345, dni 30.123.456, nombre: Ana apellido: Pérez tel 11-5555-4444")

	if f.OrderID != "12345" {
		t.Errorf("OrderID = %q; want 12345", f.OrderID)
	}
	if f.DNI != "30123456" {
		t.Errorf("DNI = %q; want 30123456", f.DNI)
	}
	if f.Name != "Ana" {
		t.Errorf("Name = %q; want Ana", f.Name)
	}
	if f.LastName != "Pérez" {
		t.Errorf("LastName = %q; want Pérez", f.LastName)
	}
	if f.Phone != "1155554444" {
		t.Errorf("Phone = %q; want 1155554444", f.Phone)
	}
	if !f.Sufficient() {
		t.Errorf("expected sufficient factors, got %d", f.FactorCount())
	}
}

func TestExtractIdentityFactors_SelfIntro(t *testing.T) {
	f := ExtractIdentityFactors("soy Ana Perez, orden 98765")
	if f.Name != "Ana" || f.LastName != "Perez" {
		t.Fatalf("self-intro parse = %+v", f)
	}
	if f.OrderID != "98765" {
		t.Fatalf("OrderID = %q", f.OrderID)
	}
}

func TestExtractIdentityFactors_InsufficientCounts(t *testing.T) {
	f := ExtractIdentityFactors("pedido 55555 dni 30123456")
	if f.FactorCount() != 1 {
		t.Fatalf("FactorCount = %d; want 1", f.FactorCount())
	}
	if f.Sufficient() {
		t.Fatalf("one factor must not be sufficient")
	}
	if f.MissingFactors() != 1 {
		t.Fatalf("MissingFactors = %d; want 1", f.MissingFactors())
	}

	// Adding a phone crosses the 2-of-4 threshold.
	f2 := ExtractIdentityFactors("pedido 55555 dni 30123456 cel 011 4555 6677")
	if !f2.Sufficient() {
		t.Fatalf("orderId+dni+phone must be sufficient, got %+v", f2)
	}
}

func TestExtractIdentityFactors_NoOrderID(t *testing.T) {
	f := ExtractIdentityFactors("dni 30123456 soy Ana")
	if f.OrderID != "" {
		t.Fatalf("OrderID = %q; want empty (dni digits already claimed)", f.OrderID)
	}
	if f.Sufficient() {
		t.Fatalf("missing order id can never be sufficient")
	}
}

func TestExtractIdentityFactors_SameDigitsNotDoubleCounted(t *testing.T) {
	// One digit run labeled as DNI must not also satisfy the phone fallback.
	f := ExtractIdentityFactors("dni 301234567")
	if f.DNI != "301234567" {
		t.Fatalf("DNI = %q", f.DNI)
	}
	if f.Phone != "" {
		t.Fatalf("Phone = %q; digits were already claimed by DNI", f.Phone)
	}
}

func TestExtractIdentityFactors_MalformedDNIDropped(t *testing.T) {
	f := ExtractIdentityFactors("dni 12345") // too short for a DNI
	if f.DNI != "" {
		t.Fatalf("DNI = %q; want empty for a 5-digit candidate", f.DNI)
	}
}

func TestExtractIdentityFactors_AlphanumericOrderID(t *testing.T) {
	f := ExtractIdentityFactors("order AB-120045")
	if f.OrderID != "AB-120045" {
		t.Fatalf("OrderID = %q; want AB-120045", f.OrderID)
	}
}
