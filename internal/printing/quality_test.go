package printing

import (
	"reflect"
	"testing"
)

func TestCupsQualityOptions(t *testing.T) {
	cases := []struct {
		name    string
		printer string
		want    []string
	}{
		{
			name:    "epson inkjet gets vendor codes",
			printer: "EPSON ET-3830 Series",
			want:    []string{"Resolution=1200x1200dpi", "EPIJ_Qual=307", "EPIJ_Medi=12"},
		},
		{
			name:    "hp gets label media",
			printer: "HP OfficeJet Pro",
			want:    []string{"MediaType=labels"},
		},
		{
			name:    "laserjet matches without hp prefix",
			printer: "Color LaserJet M255",
			want:    []string{"MediaType=labels"},
		},
		{
			name:    "unknown vendor gets generic best quality",
			printer: "Brother HL-L2350DW",
			want:    []string{"print-quality=5"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cupsQualityOptions(tc.printer)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("options for %q = %v, want %v", tc.printer, got, tc.want)
			}
		})
	}
}
