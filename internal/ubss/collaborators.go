package ubss

// Cleaner is the interface shared by interference removal algorithms
// operating on measurement tensors. The UBSS session implements it; simpler
// collaborators such as the two-sensor differencing canceller live outside
// this module and plug in behind the same contract.
type Cleaner interface {
	Clean(b *Tensor, triaxial bool) (*Result, error)
}

var _ Cleaner = (*Session)(nil)

// TrackDetector marks narrowband spectral tracks in a magnitude spectrogram
// (frequency rows by time columns), returning a 0/1 mask of detected pixels.
// The likelihood-ratio detector is an external collaborator implementing
// this contract; no implementation ships in this module.
type TrackDetector interface {
	DetectTracks(spectrogram [][]float64, threshold float64) [][]uint8
}

// CouplingEstimator estimates per-sensor coupling coefficients of a known
// interference source, e.g. by dipole fitting. External collaborator,
// interface only.
type CouplingEstimator interface {
	EstimateCoupling(b *Tensor, sourceAxis int) ([]float64, error)
}
