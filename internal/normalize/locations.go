package normalize

// canonicalLocations maps provider-specific spellings to canonical location
// identifiers. CWA payloads name Taiwan's administrative divisions in Chinese,
// sometimes with the 台/臺 variant glyph. Unmapped names pass through raw.
var canonicalLocations = map[string]string{
	"臺北市": "Taipei City",
	"台北市": "Taipei City",
	"新北市": "New Taipei City",
	"桃園市": "Taoyuan City",
	"臺中市": "Taichung City",
	"台中市": "Taichung City",
	"臺南市": "Tainan City",
	"台南市": "Tainan City",
	"高雄市": "Kaohsiung City",
	"基隆市": "Keelung City",
	"新竹市": "Hsinchu City",
	"新竹縣": "Hsinchu County",
	"苗栗縣": "Miaoli County",
	"彰化縣": "Changhua County",
	"南投縣": "Nantou County",
	"雲林縣": "Yunlin County",
	"嘉義市": "Chiayi City",
	"嘉義縣": "Chiayi County",
	"屏東縣": "Pingtung County",
	"宜蘭縣": "Yilan County",
	"花蓮縣": "Hualien County",
	"臺東縣": "Taitung County",
	"台東縣": "Taitung County",
	"澎湖縣": "Penghu County",
	"金門縣": "Kinmen County",
	"連江縣": "Lienchiang County",
}

// CanonicalLocation returns the canonical identifier for a provider-specific
// location name, or the raw name unchanged when no mapping exists.
func CanonicalLocation(name string) string {
	if canonical, ok := canonicalLocations[name]; ok {
		return canonical
	}
	return name
}
