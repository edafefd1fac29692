package validation

import "testing"

func TestCheckPassword(t *testing.T) {
	p := Policy{MinLength: 10, RequireUpper: true, RequireLower: true, RequireDigit: true}

	if err := p.CheckPassword("Abcdefgh12"); err != nil {
		t.Fatalf("password válido rechazado: %v", err)
	}
	if err := p.CheckPassword("corto1A"); err != ErrPasswordTooShort {
		t.Fatalf("esperaba ErrPasswordTooShort, got %v", err)
	}
	if err := p.CheckPassword("sinmayusculas1"); err != ErrPasswordWeak {
		t.Fatalf("esperaba ErrPasswordWeak (upper), got %v", err)
	}
	if err := p.CheckPassword("SINMINUSCULAS1"); err != ErrPasswordWeak {
		t.Fatalf("esperaba ErrPasswordWeak (lower), got %v", err)
	}
	if err := p.CheckPassword("SinDigitosAca"); err != ErrPasswordWeak {
		t.Fatalf("esperaba ErrPasswordWeak (digit), got %v", err)
	}

	sym := Policy{MinLength: 8, RequireSymbol: true}
	if err := sym.CheckPassword("abcdefgh"); err != ErrPasswordWeak {
		t.Fatalf("esperaba ErrPasswordWeak (symbol), got %v", err)
	}
	if err := sym.CheckPassword("abcdefg!"); err != nil {
		t.Fatalf("símbolo presente rechazado: %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	valids := []string{"a@b.co", "ana.lopez+tag@example.com"}
	for _, v := range valids {
		if !ValidEmail(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
	invalids := []string{"", "sinArroba.com", "a@b", "dos @espacios.com", "@nada.com"}
	for _, v := range invalids {
		if ValidEmail(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestValidMsisdn(t *testing.T) {
	if !ValidMsisdn("5491122334455") {
		t.Fatalf("msisdn válido rechazado")
	}
	for _, v := range []string{"", "0123", "+5491122334455", "abc", "123456789012345678"} {
		if ValidMsisdn(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}
