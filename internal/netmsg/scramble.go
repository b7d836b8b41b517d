package netmsg

// scramble is the deterministic bit-mixing transform both peers apply
// during the handshake (spec §4.4.1). It is reproduced bit-for-bit from the
// spec's reference transform; it is not bijective and must never be
// repurposed as anything resembling authentication (spec §9).
func scramble(input uint64) uint64 {
	x := input ^ 0x000DDFAC06302AD3
	return ((x & 0x00ADFCB27610439B) >> 16) | ((x & 0x00000003726327AD) << 16)
}
