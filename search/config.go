package search

// Config bundles the tunables search.Driver needs, the Go-side home for
// the config package's SBT.* keys (spec.md §6.3): exploreCoef,
// depthTh, maxDistTry and distTh. nParticles and maxTrials live one
// level up, in the engine package that decides how many times to call
// SingleSearch per genPol invocation.
type Config struct {
	// ExploreCoef is UCB1's c.
	ExploreCoef float64
	// DepthThreshold is the discount floor at which a trial stops
	// descending and treats the current state as a cutoff (spec.md §4.6
	// step 2/6).
	DepthThreshold float64
	// MaxDistTry bounds how many candidate belief nodes the POL rollout
	// strategy samples before giving up on finding a near neighbor.
	MaxDistTry int
	// DistThreshold is the DistL1Independent distance below which a
	// candidate is accepted as a near neighbor.
	DistThreshold float64
}
