// Package classifier is the Status Classifier (spec §4.3): it maps a
// StatusDesc string to a numeric StatusCode via the CandleMasterCode table,
// then matches that code against a per-asset signal table to produce an
// Action. Ported from analysis_generator.rs's build_status_code_map/
// lookup_series_code.
package classifier

// statusCodeTable is the embedded CandleMasterCode mapping from StatusDesc
// to StatusCode (spec §4.3: "loads CandleMasterCode table at startup").
// Entries are grounded one-for-one on the original implementation's table.
var statusCodeTable = map[string]uint32{
	"L-DD-E-D": 1,
	"L-DD-G-C": 2,
	"L-DD-G-D": 3,
	"L-DD-G-N": 4,
	"L-DD-R-C": 5,
	"L-DD-R-D": 6,
	"L-DD-R-N": 7,
	"L-DF-G-C": 8,
	"L-DF-G-D": 9,
	"L-DF-G-N": 10,
	"L-DF-R-C": 11,
	"L-DF-R-D": 12,
	"L-DF-R-N": 13,
	"L-DU-G-C": 14,
	"L-DU-G-D": 15,
	"L-DU-G-N": 16,
	"L-DU-R-C": 17,
	"L-DU-R-D": 18,
	"L-DU-R-N": 19,
	"L-FD-G-C": 20,
	"L-FD-G-N": 21,
	"L-FD-R-C": 22,
	"L-FD-R-N": 23,
	"L-FF-G-C": 24,
	"L-FF-G-N": 25,
	"L-FF-R-N": 26,
	"L-FU-G-C": 27,
	"L-FU-G-D": 28,
	"L-FU-G-N": 29,
	"L-FU-R-D": 30,
	"L-FU-R-N": 31,
	"L-UD-G-C": 32,
	"L-UD-G-N": 33,
	"L-UD-R-C": 34,
	"L-UD-R-N": 35,
	"L-UF-G-C": 36,
	"L-UF-G-N": 37,
	"L-UU-G-C": 38,
	"L-UU-G-D": 39,
	"L-UU-G-N": 40,
	"L-UU-R-D": 41,
	"L-UU-R-N": 42,
	"M-DD-G-C": 43,
	"M-DD-G-D": 44,
	"M-DD-G-N": 45,
	"M-DD-R-C": 46,
	"M-DD-R-D": 47,
	"M-DD-R-N": 48,
	"M-DF-G-C": 49,
	"M-DF-G-N": 50,
	"M-DF-R-C": 51,
	"M-DF-R-N": 52,
	"M-DU-G-C": 53,
	"M-DU-G-N": 54,
	"M-DU-R-C": 55,
	"M-DU-R-N": 56,
	"M-FD-G-C": 57,
	"M-FD-G-D": 58,
	"M-FD-G-N": 59,
	"M-FD-R-D": 60,
	"M-FD-R-N": 61,
	"M-FU-G-C": 62,
	"M-FU-G-N": 63,
	"M-FU-R-C": 64,
	"M-FU-R-N": 65,
	"M-UD-E-C": 66,
	"M-UD-G-C": 67,
	"M-UD-G-D": 68,
	"M-UD-G-N": 69,
	"M-UD-R-C": 70,
	"M-UD-R-D": 71,
	"M-UD-R-N": 72,
	"M-UF-G-C": 73,
	"M-UF-G-D": 74,
	"M-UF-G-N": 75,
	"M-UF-R-D": 76,
	"M-UU-E-D": 77,
	"M-UU-E-N": 78,
	"M-UU-G-C": 79,
	"M-UU-G-D": 80,
	"M-UU-G-N": 81,
	"M-UU-R-C": 82,
	"M-UU-R-D": 83,
	"M-UU-R-N": 84,
}

// LoadCodeTable returns a copy of the embedded StatusDesc -> StatusCode
// table, suitable for handing to a Table that allows hot-reload overrides
// (spec §6.3: indicator/signal config is "hot-reloadable").
func LoadCodeTable() map[string]uint32 {
	out := make(map[string]uint32, len(statusCodeTable))
	for k, v := range statusCodeTable {
		out[k] = v
	}
	return out
}

// Lookup returns the StatusCode for a StatusDesc, and whether it was found.
// An absent entry means the classifier has nothing to report; downstream
// treats that the same as an explicit Idle action (spec §4.3).
func Lookup(table map[string]uint32, statusDesc string) (uint32, bool) {
	code, ok := table[statusDesc]
	return code, ok
}
