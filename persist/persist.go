// Package persist implements spec.md §6.2: a line-oriented text
// serialization of the belief tree. The teacher has no analogue (its
// Q-table never needed an external representation); this is grounded
// directly in original_source/src/solver/Solver.hpp's friend
// declaration for a TextSerializer, generalized into an afero.Fs-backed
// reader/writer so the engine never touches the OS filesystem directly
// (matching the rest of the pack's preference for injecting an fs
// abstraction rather than calling os.* inline).
//
// Particles are identified purely by (sequence-id, entry-index), per
// spec.md §6.2 -- this package reconstructs BeliefNode/Mapping/Entry/
// ObsMapping structure and bookkeeping (visits, totalQ, legality),
// which is everything getBestAction/getQValue need (spec.md §8 scenario
// S6). Load skips the particle (P) lines: particle membership and the
// StateInfo back-references are not reconstructed, so a loaded tree's
// belief nodes start with no particles.
package persist

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/niceyeti/abtsolver/model"
	"github.com/niceyeti/abtsolver/rng"
	"github.com/niceyeti/abtsolver/telemetry"
	"github.com/niceyeti/abtsolver/tree"
)

// Codec lets a problem-specific Model supply text encode/decode for
// its opaque Observation type. Actions need no codec for the common,
// discretized-action case: bin numbers round-trip through the
// ActionPool's own bin array. Continuous-action mappings are not
// supported: their entries carry no bin, and readEntry rejects them.
type Codec interface {
	EncodeObservation(model.Observation) string
	DecodeObservation(string) (model.Observation, error)
}

// Save writes t's belief tree to path on fs.
func Save(fs afero.Fs, path string, t *tree.Tree, codec Codec) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeNode(w, t.Root(), codec, 0); err != nil {
		return err
	}
	return w.Flush()
}

func writeIndent(w *bufio.Writer, depth int) {
	for i := 0; i < depth; i++ {
		w.WriteByte('\t')
	}
}

func writeNode(w *bufio.Writer, n *tree.BeliefNode, codec Codec, depth int) error {
	writeIndent(w, depth)
	fmt.Fprintf(w, "BeliefNode %d particles=%d\n", n.ID(), n.NumParticles())
	for _, p := range n.Particles() {
		writeIndent(w, depth+1)
		fmt.Fprintf(w, "P %d %d\n", p.SequenceID(), p.Index())
	}

	mapping := n.Mapping()
	entries := mapping.Entries()
	nChildren := 0
	for _, e := range entries {
		if e.Child != nil {
			nChildren++
		}
	}
	writeIndent(w, depth+1)
	fmt.Fprintf(w, "Mapping visited=%d children=%d totalVisits=%d\n",
		mapping.NumberOfVisitedEntries(), nChildren, mapping.TotalVisitCount())

	for _, e := range entries {
		writeIndent(w, depth+1)
		flags := ""
		if !e.Legal {
			flags += " ILLEGAL"
		}
		if e.Child == nil {
			flags += " NOCHILD"
		}
		fmt.Fprintf(w, "Entry bin=%d legal=%t visits=%d totalQ=%s action=%q%s\n",
			e.Bin, e.Legal, e.Visits, formatFloat(e.TotalQ), e.Action.String(), flags)

		if e.Child == nil {
			continue
		}
		for _, oe := range e.Child.Obs.Entries() {
			writeIndent(w, depth+2)
			if oe.Obs == nil {
				// An illegal step's child is keyed by a nil observation.
				fmt.Fprintf(w, "Obs nil\n")
			} else {
				fmt.Fprintf(w, "Obs %q\n", codec.EncodeObservation(oe.Obs))
			}
			if err := writeNode(w, oe.Node, codec, depth+3); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Load reads a belief tree previously written by Save, reconstructing
// it as a fresh tree.Tree built from the given (live, problem-supplied)
// action/observation pools.
func Load(fs afero.Fs, path string, actions tree.ActionPool, observations tree.ObservationPool, r *rng.Source, log *telemetry.Logger, codec Codec) (*tree.Tree, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	t := tree.New(actions, observations, r, log)
	p := &parser{lines: lines}
	if err := readNode(p, t.Root(), codec); err != nil {
		return nil, err
	}
	return t, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) peek() (content string, depth int, ok bool) {
	if p.pos >= len(p.lines) {
		return "", 0, false
	}
	raw := p.lines[p.pos]
	d := 0
	for d < len(raw) && raw[d] == '\t' {
		d++
	}
	return raw[d:], d, true
}

func (p *parser) next() (content string, depth int, ok bool) {
	content, depth, ok = p.peek()
	if ok {
		p.pos++
	}
	return
}

func readNode(p *parser, node *tree.BeliefNode, codec Codec) error {
	header, depth, ok := p.next()
	if !ok || !strings.HasPrefix(header, "BeliefNode ") {
		return fmt.Errorf("persist: expected BeliefNode header, got %q", header)
	}
	fields := strings.Fields(header)
	if len(fields) < 3 {
		return fmt.Errorf("persist: malformed BeliefNode header %q", header)
	}
	nParticles, err := strconv.Atoi(strings.TrimPrefix(fields[2], "particles="))
	if err != nil {
		return fmt.Errorf("persist: malformed particle count in %q: %w", header, err)
	}
	for i := 0; i < nParticles; i++ {
		if _, _, ok := p.next(); !ok {
			return fmt.Errorf("persist: truncated particle list for node %d", node.ID())
		}
	}

	mappingLine, _, ok := p.next()
	if !ok || !strings.HasPrefix(mappingLine, "Mapping ") {
		return fmt.Errorf("persist: expected Mapping line, got %q", mappingLine)
	}

	for {
		line, d, ok := p.peek()
		if !ok || d != depth+1 || !strings.HasPrefix(line, "Entry ") {
			break
		}
		p.pos++
		if err := readEntry(p, node, line, depth, codec); err != nil {
			return err
		}
	}

	node.Mapping().Update()
	return nil
}

func readEntry(p *parser, node *tree.BeliefNode, line string, nodeDepth int, codec Codec) error {
	kv := parseKV(line)
	bin, err := strconv.Atoi(kv["bin"])
	if err != nil {
		return fmt.Errorf("persist: malformed bin in %q: %w", line, err)
	}
	legal, err := strconv.ParseBool(kv["legal"])
	if err != nil {
		return fmt.Errorf("persist: malformed legal flag in %q: %w", line, err)
	}
	visits, err := strconv.ParseInt(kv["visits"], 10, 64)
	if err != nil {
		return fmt.Errorf("persist: malformed visits in %q: %w", line, err)
	}
	totalQ, err := strconv.ParseFloat(kv["totalQ"], 64)
	if err != nil {
		return fmt.Errorf("persist: malformed totalQ in %q: %w", line, err)
	}

	mapping := node.Mapping()
	entries := mapping.Entries()
	if bin < 0 || bin >= len(entries) {
		return fmt.Errorf("persist: bin %d out of range (continuous action mappings are not supported for reconstruction)", bin)
	}
	entry := entries[bin]
	mapping.SetLegal(entry, legal)
	if visits != 0 || totalQ != 0 {
		if _, err := mapping.UpdateValue(entry, visits, totalQ); err != nil {
			return fmt.Errorf("persist: restoring entry bin=%d: %w", bin, err)
		}
	}

	hasChild := true
	for _, f := range strings.Fields(line) {
		if f == "NOCHILD" {
			hasChild = false
			break
		}
	}
	if !hasChild {
		return nil
	}

	actionNode := mapping.CreateActionNode(entry.Action)
	for {
		obsLine, d, ok := p.peek()
		if !ok || d != nodeDepth+2 || !strings.HasPrefix(obsLine, "Obs ") {
			break
		}
		p.pos++
		repr := strings.TrimSpace(strings.TrimPrefix(obsLine, "Obs "))
		var obs model.Observation
		if repr != "nil" {
			unquoted, err := strconv.Unquote(repr)
			if err != nil {
				return fmt.Errorf("persist: malformed Obs line %q: %w", obsLine, err)
			}
			obs, err = codec.DecodeObservation(unquoted)
			if err != nil {
				return fmt.Errorf("persist: decoding observation %q: %w", unquoted, err)
			}
		}
		child, _ := actionNode.Obs.CreateOrGetChild(obs, nil)
		if err := readNode(p, child, codec); err != nil {
			return err
		}
	}
	return nil
}

// parseKV splits a line of space-separated key=value tokens (ignoring
// the leading "Entry" keyword and any trailing bare flag words like
// ILLEGAL/NOCHILD) into a lookup map. Tokens are split on whitespace
// only, so a quoted action="..." value containing spaces is cut apart;
// readEntry reads only bin, legal, visits and totalQ.
func parseKV(line string) map[string]string {
	out := make(map[string]string)
	fields := strings.Fields(line)
	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			continue
		}
		out[f[:eq]] = f[eq+1:]
	}
	return out
}
