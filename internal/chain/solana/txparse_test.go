package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestExtractLaunchesOuterInstruction(t *testing.T) {
	fx := newLaunchFixture(createData("Dolphin Ai", "DOLPHIN", "https://example.com/d.json"))
	dec := newTestDecoder(t)

	launches := ExtractLaunches(fx.tx, &rpc.TransactionMeta{}, fx.program, dec)
	if len(launches) != 1 {
		t.Fatalf("expected one launch, got %d", len(launches))
	}
	l := launches[0]
	if !l.Accounts.Mint.Equals(fx.mint) || !l.Accounts.Creator.Equals(fx.user) || !l.Accounts.BondingCurve.Equals(fx.curve) {
		t.Fatalf("unexpected accounts: %+v", l.Accounts)
	}
	if l.Name != "Dolphin Ai" || l.Symbol != "DOLPHIN" {
		t.Fatalf("unexpected args: %+v", l)
	}
}

func TestExtractLaunchesInnerInstructionWithLoadedAddresses(t *testing.T) {
	fx := newLaunchFixture(createData("Dolphin Ai", "DOLPHIN", "u"))
	dec := newTestDecoder(t)
	router := testKey(77)
	loaded := testKey(99)

	// The outer instruction now belongs to a router; the create is a CPI whose
	// program id comes from a lookup table.
	outer := fx.tx.Message.Instructions[0]
	fx.tx.Message.AccountKeys[13] = router
	fx.tx.Message.Instructions[0] = solana.CompiledInstruction{ProgramIDIndex: 13, Data: solana.Base58{1}}
	meta := &rpc.TransactionMeta{
		LoadedAddresses: rpc.LoadedAddresses{Writable: solana.PublicKeySlice{loaded}, ReadOnly: solana.PublicKeySlice{fx.program}},
		InnerInstructions: []rpc.InnerInstruction{{
			Index: 0,
			Instructions: []solana.CompiledInstruction{{
				ProgramIDIndex: 15,
				Accounts:       outer.Accounts,
				Data:           outer.Data,
			}},
		}},
	}

	launches := ExtractLaunches(fx.tx, meta, fx.program, dec)
	if len(launches) != 1 || !launches[0].Accounts.Mint.Equals(fx.mint) {
		t.Fatalf("expected inner create, got %+v", launches)
	}
}

func TestExtractLaunchesSkipsForeignAndUndecodable(t *testing.T) {
	dec := newTestDecoder(t)

	fx := newLaunchFixture([]byte{9, 9, 9, 9, 9, 9, 9, 9})
	if got := ExtractLaunches(fx.tx, nil, fx.program, dec); len(got) != 0 {
		t.Fatalf("unknown discriminator produced launches: %+v", got)
	}

	fx = newLaunchFixture(createData("Dolphin Ai", "DOLPHIN", "u"))
	fx.tx.Message.Instructions[0].Accounts = []uint16{1, 2, 3, 40}
	if got := ExtractLaunches(fx.tx, nil, fx.program, dec); len(got) != 0 {
		t.Fatalf("out of range account produced launches: %+v", got)
	}

	fx = newLaunchFixture(createData("Dolphin Ai", "DOLPHIN", "u"))
	if got := ExtractLaunches(fx.tx, nil, testKey(55), dec); len(got) != 0 {
		t.Fatalf("other program produced launches: %+v", got)
	}
}

func TestMentionsLaunch(t *testing.T) {
	logs := []string{"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]", "Program log: Instruction: Create"}
	if !MentionsLaunch(logs) {
		t.Fatalf("expected create to be detected")
	}
	if MentionsLaunch([]string{"Program log: Instruction: Buy"}) {
		t.Fatalf("buy is not a launch")
	}
}
