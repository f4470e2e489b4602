package enum

type DisputeStatus string

const (
	DisputeStatusFormalized DisputeStatus = "formalized"
	DisputeStatusWon        DisputeStatus = "won"
	DisputeStatusLost       DisputeStatus = "lost"
)

func (s DisputeStatus) IsClosed() bool {
	return s == DisputeStatusWon || s == DisputeStatusLost
}
