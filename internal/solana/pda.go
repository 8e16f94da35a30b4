package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DerivePDA derives a Program Derived Address: the first sha256 of
// seeds || bump || programID || "ProgramDerivedAddress" that lands off
// the ed25519 curve, searching bumps downward from 255.
func DerivePDA(seeds [][]byte, programID string) (string, uint8, error) {
	programBytes, err := decodeBase58Key(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}

	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}

	return "", 0, fmt.Errorf("no off-curve address for program %s", programID)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func decodeBase58Key(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("invalid pubkey %q", s)
	}
	return b, nil
}

// BondingCurveAddress derives the bonding curve state account for a
// mint. Seeds: ["bonding-curve", mint].
func BondingCurveAddress(mint string) (string, error) {
	mintBytes, err := decodeBase58Key(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	addr, _, err := DerivePDA([][]byte{[]byte("bonding-curve"), mintBytes}, PumpFunProgramID)
	return addr, err
}

// AssociatedTokenAddress derives the canonical token account for an
// owner and mint. Seeds: [owner, token program, mint] under the
// associated token program.
func AssociatedTokenAddress(owner, mint string) (string, error) {
	ownerBytes, err := decodeBase58Key(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintBytes, err := decodeBase58Key(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgBytes, err := decodeBase58Key(TokenProgramID)
	if err != nil {
		return "", err
	}

	addr, _, err := DerivePDA([][]byte{ownerBytes, tokenProgBytes, mintBytes}, AssociatedTokenProgramID)
	return addr, err
}
