package latency

// CompensateTimer converts a server-declared countdown (milliseconds
// remaining) plus an estimated round-trip latency into the value a client
// should display. The countdown is padded by half the round trip - an
// estimate of one-way delay - so a client's local countdown does not reach
// zero before the server's authoritative deadline.
//
// The caller guarantees serverTimerMS >= 0; this function does not clamp.
// For estimatedLatencyMS >= 0 the result is always >= serverTimerMS.
// Flooring the displayed value at zero is the presentation layer's job.
func CompensateTimer(serverTimerMS, estimatedLatencyMS float64) float64 {
	return serverTimerMS + estimatedLatencyMS/2
}
