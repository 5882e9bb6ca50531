package domain

import (
	"encoding/json"
	"testing"
)

func TestUserProfile_IsActive(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "active", "on"} {
		if !(UserProfile{Active: v}).IsActive() {
			t.Fatalf("IsActive(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "inactive", "blocked"} {
		if (UserProfile{Active: v}).IsActive() {
			t.Fatalf("IsActive(%q) = true; want false", v)
		}
	}
}

func TestUserProfile_FullName(t *testing.T) {
	cases := []struct {
		in   UserProfile
		want string
	}{
		{UserProfile{FirstName: "maria", LastName: "da silva"}, "Maria Da Silva"},
		{UserProfile{FirstName: "  joão "}, "João"},
		{UserProfile{TradingName: "acme ltda"}, "Acme Ltda"},
		{UserProfile{Username: "jdoe"}, "jdoe"},
	}
	for _, tc := range cases {
		if got := tc.in.FullName(); got != tc.want {
			t.Fatalf("FullName(%+v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestUserProfile_JSONFieldNames(t *testing.T) {
	raw := []byte(`{"id":"42","email":"a@b.c","username":"ab","firstName":"A","lastName":"B",
		"documentNumber":"123","documentType":"cpf","accountType":"pf","active":"true","token":"t"}`)
	var u UserProfile
	if err := json.Unmarshal(raw, &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.ID != "42" || u.DocumentType != "cpf" || u.AccountType != "pf" || u.Token != "t" || !u.IsActive() {
		t.Fatalf("unexpected profile: %+v", u)
	}
}

func TestUserProfile_Participant(t *testing.T) {
	u := UserProfile{ID: "7", Username: "zed", Email: "z@example.com"}
	p := u.Participant("sock-1")
	if p.ID != "7" || p.SocketID != "sock-1" || p.Username != "zed" || p.Email != "z@example.com" || p.Avatar != nil {
		t.Fatalf("unexpected participant: %+v", p)
	}
}
