package collapse

import "testing"

func TestHostOf(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"http://www.Example.org/path?q=1", "example.org"},
		{"https://archive.org:8443/details/x", "archive.org"},
		{"ftp://files.example.net/", "files.example.net"},
		{"", ""},
		{"not a url at all", ""},
		{"://broken", ""},
	}
	for _, tc := range tests {
		t.Run(tc.link, func(t *testing.T) {
			if got := HostOf(tc.link); got != tc.want {
				t.Errorf("HostOf(%q) = %q, want %q", tc.link, got, tc.want)
			}
		})
	}
}

func TestHostLookup(t *testing.T) {
	urls := map[int64]string{1: "http://a.org/x", 2: "http://www.b.org/"}
	l := HostLookup{URL: func(id int64) string { return urls[id] }}

	if got := l.Group(1); got != "a.org" {
		t.Errorf("Group(1) = %q", got)
	}
	if got := l.Group(2); got != "b.org" {
		t.Errorf("Group(2) = %q", got)
	}
	if got := l.Group(3); got != "" {
		t.Errorf("Group(3) = %q, want empty", got)
	}
	if got := (HostLookup{}).Group(1); got != "" {
		t.Errorf("nil URL func: Group(1) = %q", got)
	}
}

func TestMemo(t *testing.T) {
	calls := 0
	m := NewMemo(GroupLookupFunc(func(id int64) string {
		calls++
		if id == 1 {
			return "a"
		}
		return ""
	}))

	for i := 0; i < 3; i++ {
		if got := m.Group(1); got != "a" {
			t.Fatalf("Group(1) = %q", got)
		}
		if got := m.Group(2); got != "" {
			t.Fatalf("Group(2) = %q", got)
		}
	}
	if calls != 2 {
		t.Errorf("inner lookup called %d times, want 2", calls)
	}
}
