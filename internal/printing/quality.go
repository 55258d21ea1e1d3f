package printing

import "strings"

// cupsQualityOptions picks printer-appropriate CUPS quality options by
// substring-matching the printer name. Best effort only: the driver ignores
// options it does not understand.
func cupsQualityOptions(printerName string) []string {
	lower := strings.ToLower(printerName)

	switch {
	case strings.Contains(lower, "epson"):
		// Epson inkjets accept vendor codes: 1200 dpi, highest quality,
		// premium presentation matte paper.
		return []string{
			"Resolution=1200x1200dpi",
			"EPIJ_Qual=307",
			"EPIJ_Medi=12",
		}
	case strings.Contains(lower, "hp"), strings.Contains(lower, "laserjet"):
		return []string{"MediaType=labels"}
	default:
		return []string{"print-quality=5"}
	}
}
