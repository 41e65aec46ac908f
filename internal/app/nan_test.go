package app

import "testing"

func TestSanitizeNonFinite(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":      {`{"x":[1,2]}`, `{"x":[1,2]}`},
		"nan":        {`{"x":[1,NaN,3]}`, `{"x":[1,null,3]}`},
		"infinities": {`[Infinity,-Infinity]`, `[null,null]`},
		"in string":  {`{"title":"NaN loss","y":NaN}`, `{"title":"NaN loss","y":null}`},
		"escaped":    {`{"t":"a\"NaN","y":Infinity}`, `{"t":"a\"NaN","y":null}`},
		"trailing":   {`NaN`, `null`},
		"negative 1": {`[-1,-Infinity]`, `[-1,null]`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := string(sanitizeNonFinite([]byte(tc.in))); got != tc.want {
				t.Fatalf("sanitizeNonFinite(%s) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}
