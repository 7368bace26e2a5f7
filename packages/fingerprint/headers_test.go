package fingerprint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCookieNames(t *testing.T) {
	tests := []struct {
		name      string
		cookie    []string
		whitelist []string
		want      []string
	}{
		{name: "no cookies", cookie: nil, want: []string{}},
		{name: "empty cookie", cookie: []string{""}, want: []string{}},
		{name: "all names", cookie: []string{`name1=value1; name2="value2"`}, want: []string{"name1", "name2"}},
		{name: "sorted", cookie: []string{"b=1; a=2; c=3"}, want: []string{"a", "b", "c"}},
		{name: "lower-cased", cookie: []string{"A=1; B=2; C=3"}, want: []string{"a", "b", "c"}},
		{name: "invalid segments dropped", cookie: []string{"A=1; ; B=2; =3; bare"}, want: []string{"a", "b"}},
		{name: "whitelist", cookie: []string{"a=1; b=2; c=3"}, whitelist: []string{"A", "b"}, want: []string{"a", "b"}},
		{name: "multiple headers", cookie: []string{"b=1", "a=2"}, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, c := range tt.cookie {
				h.Add("Cookie", c)
			}
			assert.Equal(t, tt.want, CookieNames(h, tt.whitelist))
		})
	}
}

func TestHeaderNames(t *testing.T) {
	assert.Equal(t, []string{}, HeaderNames(nil, nil))
	assert.Equal(t, []string{}, HeaderNames(http.Header{}, nil))

	h := http.Header{"B": {"1"}, "C": {"2"}, "A": {"3"}}
	assert.Equal(t, []string{"a", "b", "c"}, HeaderNames(h, nil))
	assert.Equal(t, []string{"a", "b"}, HeaderNames(h, []string{"a", "B"}))

	h.Set("X-Httpvcr-Internal-Header", "2")
	assert.Equal(t, []string{"a", "b", "c"}, HeaderNames(h, nil))
}

func TestStripInternal(t *testing.T) {
	assert.Nil(t, StripInternal(nil))

	original := http.Header{
		"A":                  {"1"},
		"X-Httpvcr-Internal": {"2"},
		"B":                  {"3"},
	}
	input := original.Clone()

	filtered := StripInternal(input)
	assert.Equal(t, http.Header{"A": {"1"}, "B": {"3"}}, filtered)
	assert.Equal(t, original, input, "input must not be modified")
}

func TestFlattenRoundTrip(t *testing.T) {
	h := http.Header{
		"Accept": {"text/html", "application/json"},
		"Cookie": {"a=1", "b=2"},
	}
	flat := Flatten(h)
	assert.Equal(t, "text/html, application/json", flat["accept"])
	assert.Equal(t, "a=1; b=2", flat["cookie"])

	back := Unflatten(flat)
	assert.Equal(t, []string{"a", "b"}, CookieNames(back, nil))
	assert.Equal(t, []string{"accept", "cookie"}, HeaderNames(back, nil))
}
