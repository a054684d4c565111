package nimiq

const (
	// Luna per NIM.
	Luna uint64 = 100_000

	ValidatorDeposit = 100_000 * Luna
	MinDelegation    = 100 * Luna

	// PreregistrationParts is the number of 64 byte payloads that make up a validator preregistration.
	PreregistrationParts = 6
	PreregistrationData  = 64

	// BurnAddress receives preregistration and pre-staking transactions.
	BurnAddress = "NQ07 0000 0000 0000 0000 0000 0000 0000 0000"
)

// HeightRange is an inclusive block height window.
type HeightRange struct {
	Start uint64
	End   uint64
}

func (r HeightRange) Contains(h uint64) bool {
	return h >= r.Start && h <= r.End
}

var (
	RegistrationWindow = HeightRange{Start: 3_016_530, End: 3_022_290}
	PrestakingWindow   = HeightRange{Start: 3_023_730, End: 3_028_050}
)
