package crypto

// otpModulus is the number of distinct 9-digit OTP codes (10^9).
const otpModulus = 1_000_000_000

// otpRejectionCeiling is the largest multiple of otpModulus that fits in a
// uint64; draws at or above it are rejected to avoid modulo bias.
const otpRejectionCeiling = (^uint64(0) / otpModulus) * otpModulus

// RandomOTPCode draws an unbiased 9-digit numeric code by rejection
// sampling a 64-bit draw: values in [otpRejectionCeiling, 2^64) are
// discarded and redrawn before reducing mod 10^9. Without the rejection,
// codes below 2^64 mod 10^9 (709551616) would be favored by a relative
// margin of about 5e-11.
func RandomOTPCode() (uint32, error) {
	for {
		v, err := RandomUint64()
		if err != nil {
			return 0, err
		}
		if v >= otpRejectionCeiling {
			continue
		}
		return uint32(v % otpModulus), nil
	}
}
