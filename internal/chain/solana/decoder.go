package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction is a decoded program instruction.
type Instruction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Text returns a string argument, or "" when absent.
func (i Instruction) Text(name string) string {
	s, _ := i.Args[name].(string)
	return s
}

// LaunchAccounts are the accounts of a launch instruction that the pipeline uses.
type LaunchAccounts struct {
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
	Creator      solana.PublicKey
}

// Decoder decodes instruction data against an IDL.
type Decoder struct {
	byDisc map[[8]byte]IDLInstruction
	byName map[string]IDLInstruction
}

// NewDecoder indexes idl by discriminator.
func NewDecoder(idl IDL) (*Decoder, error) {
	d := &Decoder{
		byDisc: make(map[[8]byte]IDLInstruction, len(idl.Instructions)),
		byName: make(map[string]IDLInstruction, len(idl.Instructions)),
	}
	for _, ix := range idl.Instructions {
		disc, err := ix.discriminator()
		if err != nil {
			return nil, err
		}
		if prev, ok := d.byDisc[disc]; ok {
			return nil, fmt.Errorf("instructions %s and %s share a discriminator", prev.Name, ix.Name)
		}
		for _, f := range ix.Args {
			if !supportedType(f.Type) {
				return nil, fmt.Errorf("instruction %s: unsupported arg type %q", ix.Name, f.Type)
			}
		}
		d.byDisc[disc] = ix
		d.byName[ix.Name] = ix
	}
	return d, nil
}

// Decode returns the instruction data decoded. Unknown discriminators and
// malformed argument data return false.
func (d *Decoder) Decode(data []byte) (Instruction, bool) {
	if len(data) < 8 {
		return Instruction{}, false
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	ix, ok := d.byDisc[disc]
	if !ok {
		return Instruction{}, false
	}

	dec := bin.NewBorshDecoder(data[8:])
	args := make(map[string]any, len(ix.Args))
	for _, f := range ix.Args {
		if f.Optional && !dec.HasRemaining() {
			continue
		}
		v, err := readField(dec, f.Type)
		if err != nil {
			return Instruction{}, false
		}
		args[f.Name] = v
	}
	return Instruction{Name: ix.Name, Args: args}, true
}

// LaunchAccounts maps a launch instruction's account list to its mint,
// bonding curve and creator. A non-launch instruction or a short account list
// returns false.
func (d *Decoder) LaunchAccounts(inst Instruction, accounts []solana.PublicKey) (LaunchAccounts, bool) {
	if inst.Name != LaunchInstruction {
		return LaunchAccounts{}, false
	}
	ix, ok := d.byName[inst.Name]
	if !ok {
		return LaunchAccounts{}, false
	}
	pick := func(name string) (solana.PublicKey, bool) {
		i, ok := ix.accountIndex(name)
		if !ok || i >= len(accounts) || accounts[i].IsZero() {
			return solana.PublicKey{}, false
		}
		return accounts[i], true
	}

	mint, ok := pick("mint")
	if !ok {
		return LaunchAccounts{}, false
	}
	creator, ok := pick("user")
	if !ok {
		return LaunchAccounts{}, false
	}
	curve, _ := pick("bonding_curve")
	return LaunchAccounts{Mint: mint, BondingCurve: curve, Creator: creator}, true
}

func supportedType(t string) bool {
	switch t {
	case "string", "bool", "u8", "u16", "u32", "u64", "pubkey", "publicKey":
		return true
	}
	return false
}

func readField(dec *bin.Decoder, t string) (any, error) {
	switch t {
	case "string":
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		if int64(n) > int64(dec.Remaining()) {
			return nil, fmt.Errorf("string length %d exceeds data", n)
		}
		b, err := dec.ReadNBytes(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case "bool":
		return dec.ReadBool()
	case "u8":
		return dec.ReadUint8()
	case "u16":
		return dec.ReadUint16(bin.LE)
	case "u32":
		return dec.ReadUint32(bin.LE)
	case "u64":
		return dec.ReadUint64(bin.LE)
	case "pubkey", "publicKey":
		if dec.Remaining() < solana.PublicKeyLength {
			return nil, fmt.Errorf("public key exceeds data")
		}
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, err
		}
		return solana.PublicKeyFromBytes(b), nil
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}
