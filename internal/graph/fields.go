package graph

import "fmt"

// Fields is the immutable record of detected column names, produced once at
// load time and threaded as an explicit argument into the sampler and the
// analyzer. No component reads column names from anywhere else.
type Fields struct {
	Pop string
	Dem string
	Rep string
	// SeedPlans lists every seed-assignment column present on the graph,
	// in candidate order.
	SeedPlans []SeedPlan
}

// SeedPlan names one enacted or proposed assignment column found on the
// graph nodes, usable as the chain's starting plan.
type SeedPlan struct {
	Key   string
	Label string
}

var popCandidates = []string{"TOT_POP", "PERSONS", "PERSONS18"}

var voteCandidates = [][2]string{
	{"PRES12D", "PRES12R"},
	{"PREDEM24", "PREREP24"},
	{"USHDEM24", "USHREP24"},
	{"WSADEM24", "WSAREP24"},
	{"WSSDEM24", "WSSREP24"},
}

var seedPlanCandidates = []SeedPlan{
	{Key: "538DEM_PL", Label: "FiveThirtyEight Democratic-favoring"},
	{Key: "538GOP_PL", Label: "FiveThirtyEight Republican-favoring"},
	{Key: "538CPCT__1", Label: "FiveThirtyEight Compactness-favoring"},
	{Key: "CONG_DIST", Label: "Congressional"},
	{Key: "SLDL_DIST", Label: "State Lower"},
	{Key: "SLDU_DIST", Label: "State Upper"},
}

// seedPlanPreference is the order in which detected seed columns are tried
// when choosing the chain's starting assignment.
var seedPlanPreference = []string{"538CPCT__1", "SLDL_DIST", "SLDU_DIST", "CONG_DIST"}

// DetectFields inspects one node's attribute set and resolves the
// population, vote, and seed-assignment columns. First candidate match wins.
// A missing required column is a configuration error, reported before any
// run is attempted.
func DetectFields(g *Graph) (Fields, error) {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return Fields{}, fmt.Errorf("cannot detect fields: graph has no nodes")
	}
	probe := nodes[0]

	var f Fields
	for _, cand := range popCandidates {
		if g.HasAttr(probe, cand) {
			f.Pop = cand
			break
		}
	}
	if f.Pop == "" {
		return Fields{}, fmt.Errorf("no population column found (tried %v)", popCandidates)
	}

	for _, pair := range voteCandidates {
		if g.HasAttr(probe, pair[0]) && g.HasAttr(probe, pair[1]) {
			f.Dem, f.Rep = pair[0], pair[1]
			break
		}
	}
	if f.Dem == "" {
		return Fields{}, fmt.Errorf("no Dem/Rep vote columns found")
	}

	for _, sp := range seedPlanCandidates {
		if g.HasAttr(probe, sp.Key) {
			f.SeedPlans = append(f.SeedPlans, sp)
		}
	}
	if len(f.SeedPlans) == 0 {
		return Fields{}, fmt.Errorf("no seed assignment columns found (looked for 538*, CONG_DIST, SLDL_DIST, SLDU_DIST)")
	}

	return f, nil
}

// StartPlanKey picks the seed column the chain starts from, honoring the
// preference order and falling back to the first detected column.
func (f Fields) StartPlanKey() string {
	have := make(map[string]bool, len(f.SeedPlans))
	for _, sp := range f.SeedPlans {
		have[sp.Key] = true
	}
	for _, key := range seedPlanPreference {
		if have[key] {
			return key
		}
	}
	return f.SeedPlans[0].Key
}
