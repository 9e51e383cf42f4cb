package pipe

// StagePanicHandler recovers a panic from a goroutine spawned on a
// stage's behalf (the Governor's memory watch) and turns it into an
// error.
type StagePanicHandler func(p any) error
