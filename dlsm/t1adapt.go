package dlsm

// onT1StoppedNormally implements the SRT/T1 adaptation formula run when
// rc=0 and T1 stops with a valid remaining time (spec.md §4.4.4):
//
//	srt <- 7/8*srt + 1/8*(t1v - remaining)
//	floor srt at 1s + 2s per digipeater; t1v = 2*srt
func (l *Link) onT1StoppedNormally(remaining float64) {
	if l.RC != 0 {
		return
	}
	l.SRT = 0.875*l.SRT + 0.125*(l.T1V-remaining)
	floor := 1 + 2*float64(l.DigiCount)
	if l.SRT < floor {
		l.SRT = floor
	}
	l.T1V = 2 * l.SRT
	l.clampT1V()
}

// onT1ExpiredRetry implements the linear back-off formula run when rc>0
// and the previous T1 had expired (spec.md §4.4.4):
//
//	t1v <- rc*0.25 + 2*srt
func (l *Link) onT1ExpiredRetry() {
	l.T1V = float64(l.RC)*0.25 + 2*l.SRT
	l.clampT1V()
}

// clampT1V resets t1v to the initial value if it leaves [0.25, 2*initial]
// (spec.md §4.4.4).
func (l *Link) clampT1V() {
	initial := l.initialT1V()
	if l.T1V < 0.25 || l.T1V > 2*initial {
		l.T1V = initial
	}
}
