package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/tasks/abc":             "/v1/tasks/:id",
		"/v1/tasks/abc/transition":  "/v1/tasks/:id/transition",
		"/v1/enrollments/xyz":       "/v1/enrollments/:id",
		"/v1/tasks":                 "/v1/tasks",
		"/v1/audit?limit=10":        "/v1/audit",
		"/v1/principals/p1/grants":  "/v1/principals/:id/grants",
		"/v1/unknown/abc/deep/path": "/v1/unknown/abc/deep/path",
		"/v1/sessions/refresh":      "/v1/sessions/refresh",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
