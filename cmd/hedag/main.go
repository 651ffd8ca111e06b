// Command hedag runs a small homomorphic addition through the full
// compile/gen_keys/encrypt/execute/decrypt pipeline against whichever
// backend the scheme dispatcher picks, the way the grounding library's
// examples/ckks programs drive a single scheme end to end from main.
//
// It exists as a smoke-test harness rather than a general-purpose
// tool: the External Interfaces of §6 are meant to be driven from Go
// code via package session, not from a CLI surface.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/session"
)

func main() {
	slots := flag.Int("slots", 8, "number of packed slots")
	a := flag.Float64("a", 1.5, "left operand, broadcast across every slot")
	b := flag.Float64("b", 2.25, "right operand, broadcast across every slot")
	flag.Parse()

	result, err := run(*slots, *a, *b)
	if err != nil {
		log.Fatalf("hedag: %v", err)
	}
	fmt.Printf("result[0:%d] = %v\n", len(result), result)
}

// run builds "out = a + b" over a fresh session, compiles it, and
// carries it through to a decrypted result.
func run(slots int, a, b float64) ([]float64, error) {
	s, err := session.New("cmd-hedag", slots)
	if err != nil {
		return nil, err
	}

	x, err := s.Input("a", dag.Cipher)
	if err != nil {
		return nil, err
	}
	y, err := s.Input("b", dag.Cipher)
	if err != nil {
		return nil, err
	}
	// The zero constant exists only to mark the graph HasDouble so the
	// scheme dispatcher has something to key off; a+b alone carries no
	// constant of its own.
	zero := s.Dag().MakeDenseConstant(dag.NewDenseConst([]float64{0}))
	sum := s.Dag().MakeBinary(dag.OpAdd, x, y)
	outNode := s.Dag().MakeBinary(dag.OpAdd, sum, zero)
	if err := s.Output("out", outNode); err != nil {
		return nil, err
	}

	if err := s.Compile(); err != nil {
		return nil, err
	}
	if err := s.GenKeys(); err != nil {
		return nil, err
	}
	if err := s.Encrypt(session.Valuation{
		"a": session.F64Value(a),
		"b": session.F64Value(b),
	}, false); err != nil {
		return nil, err
	}
	if err := s.Execute(); err != nil {
		return nil, err
	}
	result, err := s.Decrypt()
	if err != nil {
		return nil, err
	}
	return result["out"].F64Vec, nil
}
