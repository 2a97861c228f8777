package codegen

import "testing"

func TestNames(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		name string
		in   string
		want string
	}{
		{upperCamel, "upperCamel", "page_i32", "PageI32"},
		{upperCamel, "upperCamel", "Point", "Point"},
		{lowerCamel, "lowerCamel", "next_event", "nextEvent"},
		{lowerCamel, "lowerCamel", "Point__norm", "pointNorm"},
		{lowerCamel, "lowerCamel", "HTTPServer", "httpServer"},
		{lowerCamel, "lowerCamel", "is", "is_"},
		{primSlug, "primSlug", "i32", "prim_i_32"},
		{primSlug, "primSlug", "bool", "prim_bool"},
		{exprPath, "exprPath", "crate::api::Page<i32>", "crate::api::Page::<i32>"},
		{exprPath, "exprPath", "crate::api::Point", "crate::api::Point"},
		{rustField, "rustField", "type", "r#type"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%s(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestHostPath(t *testing.T) {
	tests := []struct {
		native, host, want string
	}{
		{"app::api::Point", "app", "crate::api::Point"},
		{"Vec<app::api::Point>", "app", "Vec<crate::api::Point>"},
		{"myapp::Point", "app", "myapp::Point"},
		{"db::Conn", "app", "db::Conn"},
		{"app::Point", "", "app::Point"},
	}
	for _, tt := range tests {
		if got := hostPath(tt.native, tt.host); got != tt.want {
			t.Errorf("hostPath(%q, %q) = %q, want %q", tt.native, tt.host, got, tt.want)
		}
	}
}

func TestWireFieldAvoidsKeywords(t *testing.T) {
	if got := wireField("type", false); got != "type_" {
		t.Fatalf("wireField(type) = %q", got)
	}
	if got := wireField("1", true); got != "field1" {
		t.Fatalf("wireField(1) = %q", got)
	}
}
