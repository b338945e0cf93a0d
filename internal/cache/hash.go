package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Norgate-AV/ccb/internal/config"
)

// Fingerprint hashes everything about a target's build that file timestamps do not capture.
// The hash is based on:
// - Compiler and archiver
// - Flags, including CFLAGS for non-CUDA targets
// - Include directories, in search order
// - Source list, in order
func Fingerprint(cfg *config.Config, target config.Target, sources []string) string {
	h := sha256.New()

	write := func(fields ...string) {
		for _, f := range fields {
			h.Write([]byte(f))
			h.Write([]byte{0})
		}

		h.Write([]byte{'\n'})
	}

	if target.CUDA {
		write("cuda", cfg.CUDACompiler, target.CUDART)
	} else {
		write("cc", cfg.Compiler)
		write(cfg.ExtraFlags...)
	}

	write(cfg.Archiver)
	write(target.Flags...)
	write(target.Includes...)
	write(sources...)

	return hex.EncodeToString(h.Sum(nil))
}
