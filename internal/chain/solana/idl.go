package solana

import (
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed pump_idl.json
var pumpIDLJSON []byte

// LaunchInstruction is the instruction that creates a token.
const LaunchInstruction = "create"

// IDL is the subset of an Anchor interface description the decoder needs.
type IDL struct {
	Name         string           `json:"name"`
	Address      string           `json:"address"`
	Instructions []IDLInstruction `json:"instructions"`
}

// IDLInstruction describes one instruction's accounts and Borsh argument layout.
type IDLInstruction struct {
	Name string `json:"name"`
	// Discriminator defaults to the Anchor sighash of Name.
	Discriminator []int        `json:"discriminator,omitempty"`
	Accounts      []IDLAccount `json:"accounts"`
	Args          []IDLField   `json:"args"`
}

type IDLAccount struct {
	Name string `json:"name"`
}

// IDLField is one argument. Optional fields may be missing at the end of the data.
type IDLField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// ParseIDL reads an IDL document.
func ParseIDL(data []byte) (IDL, error) {
	var idl IDL
	if err := json.Unmarshal(data, &idl); err != nil {
		return IDL{}, fmt.Errorf("parse idl: %w", err)
	}
	if len(idl.Instructions) == 0 {
		return IDL{}, fmt.Errorf("idl %q has no instructions", idl.Name)
	}
	return idl, nil
}

// PumpFunIDL returns the embedded launchpad IDL.
func PumpFunIDL() (IDL, error) {
	return ParseIDL(pumpIDLJSON)
}

// Sighash is the Anchor discriminator of a global instruction.
func Sighash(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

func (ix IDLInstruction) discriminator() ([8]byte, error) {
	if len(ix.Discriminator) == 0 {
		return Sighash(ix.Name), nil
	}
	if len(ix.Discriminator) != 8 {
		return [8]byte{}, fmt.Errorf("instruction %s: discriminator must be 8 bytes", ix.Name)
	}
	var out [8]byte
	for i, b := range ix.Discriminator {
		if b < 0 || b > 255 {
			return [8]byte{}, fmt.Errorf("instruction %s: discriminator byte %d out of range", ix.Name, b)
		}
		out[i] = byte(b)
	}
	return out, nil
}

func (ix IDLInstruction) accountIndex(name string) (int, bool) {
	for i, acc := range ix.Accounts {
		if acc.Name == name {
			return i, true
		}
	}
	return 0, false
}
