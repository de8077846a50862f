package geotag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// CRS identifies a coordinate reference system by authority and code, or
// by well-known text.
type CRS struct {
	Authority string `json:"authority,omitempty" yaml:"authority,omitempty"`
	Code      int    `json:"code,omitempty" yaml:"code,omitempty"`
	WKT       string `json:"wkt,omitempty" yaml:"wkt,omitempty"`
}

// ParseCRS parses "AUTHORITY:CODE", e.g. "EPSG:4258". A bare number is
// taken as an EPSG code.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, nil
	}
	auth, code, found := strings.Cut(s, ":")
	if !found {
		auth, code = "EPSG", s
	}
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return CRS{}, fmt.Errorf("%w: bad CRS code %q", griderr.ErrConfiguration, s)
	}
	return CRS{Authority: strings.ToUpper(strings.TrimSpace(auth)), Code: n}, nil
}

// IsZero reports whether c names nothing.
func (c CRS) IsZero() bool {
	return c.Authority == "" && c.Code == 0 && c.WKT == ""
}

// IsEPSG reports whether c is an EPSG code.
func (c CRS) IsEPSG() bool {
	return strings.EqualFold(c.Authority, "EPSG") && c.Code > 0
}

// WKTString returns the well-known text, or an identifier-only WKT2 stub
// when only authority and code are known.
func (c CRS) WKTString() string {
	if c.WKT != "" {
		return c.WKT
	}
	if c.Authority == "" {
		return ""
	}
	return fmt.Sprintf(`ID["%s",%d]`, c.Authority, c.Code)
}

func (c CRS) String() string {
	switch {
	case c.Authority != "" && c.Code > 0:
		return fmt.Sprintf("%s:%d", c.Authority, c.Code)
	case c.WKT != "":
		return c.WKT
	}
	return ""
}
