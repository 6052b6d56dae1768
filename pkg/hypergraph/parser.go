package hypergraph

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BuildFromFile reads an hMetis-format hypergraph file and constructs the CSR
// representation. The first line is "m n [fmt]" where fmt's tens digit flags
// edge weights and its ones digit flags vertex weights. Pins are 1-indexed in
// the file and shifted to 0-indexed IDs.
func BuildFromFile(path string, stable bool, numWorkers int) (*Hypergraph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening hypergraph file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	header, err := nextContentLine(scanner)
	if err != nil {
		return nil, fmt.Errorf("%w: missing header line in %s", ErrInvalidInput, path)
	}
	fields := strings.Fields(header)
	if len(fields) < 2 || len(fields) > 4 {
		return nil, fmt.Errorf("%w: malformed header %q", ErrInvalidInput, header)
	}
	numEdges, err := strconv.Atoi(fields[0])
	if err != nil || numEdges < 0 {
		return nil, fmt.Errorf("%w: malformed edge count %q", ErrInvalidInput, fields[0])
	}
	numNodes, err := strconv.Atoi(fields[1])
	if err != nil || numNodes <= 0 {
		return nil, fmt.Errorf("%w: malformed node count %q", ErrInvalidInput, fields[1])
	}
	hasEdgeWeights, hasNodeWeights := false, false
	if len(fields) >= 3 {
		format, err := strconv.Atoi(fields[2])
		if err != nil || format < 0 || format > 11 {
			return nil, fmt.Errorf("%w: malformed format flag %q", ErrInvalidInput, fields[2])
		}
		hasEdgeWeights = format/10 == 1
		hasNodeWeights = format%10 == 1
	}

	edgeVector := make([][]NodeID, numEdges)
	var edgeWeights []Weight
	if hasEdgeWeights {
		edgeWeights = make([]Weight, numEdges)
	}
	for i := 0; i < numEdges; i++ {
		line, err := nextContentLine(scanner)
		if err != nil {
			return nil, fmt.Errorf("%w: expected %d edge lines, got %d", ErrInvalidInput, numEdges, i)
		}
		tokens := strings.Fields(line)
		pos := 0
		if hasEdgeWeights {
			if len(tokens) < 2 {
				return nil, fmt.Errorf("%w: edge %d has no pins", ErrInvalidInput, i)
			}
			w, err := strconv.Atoi(tokens[0])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: edge %d has non-positive weight %q", ErrInvalidInput, i, tokens[0])
			}
			edgeWeights[i] = Weight(w)
			pos = 1
		}
		if len(tokens) == pos {
			return nil, fmt.Errorf("%w: edge %d has no pins", ErrInvalidInput, i)
		}
		pins := make([]NodeID, 0, len(tokens)-pos)
		for ; pos < len(tokens); pos++ {
			p, err := strconv.Atoi(tokens[pos])
			if err != nil || p < 1 || p > numNodes {
				return nil, fmt.Errorf("%w: edge %d references pin %q outside [1, %d]",
					ErrInvalidInput, i, tokens[pos], numNodes)
			}
			pins = append(pins, NodeID(p-1))
		}
		edgeVector[i] = pins
	}

	var nodeWeights []Weight
	if hasNodeWeights {
		nodeWeights = make([]Weight, numNodes)
		for i := 0; i < numNodes; i++ {
			line, err := nextContentLine(scanner)
			if err != nil {
				return nil, fmt.Errorf("%w: expected %d vertex weight lines, got %d", ErrInvalidInput, numNodes, i)
			}
			w, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: vertex %d has non-positive weight %q", ErrInvalidInput, i, line)
			}
			nodeWeights[i] = Weight(w)
		}
	}

	return Construct(int32(numNodes), edgeVector, edgeWeights, nodeWeights, stable, numWorkers)
}

// nextContentLine returns the next non-empty, non-comment line.
func nextContentLine(scanner *bufio.Scanner) (string, error) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("unexpected end of file")
}

// WritePartitionFile writes one 0-indexed block ID per line, one line per
// vertex in ID order. The file is written to a temporary sibling first and
// renamed into place so a failed run never leaves partial output.
func WritePartitionFile(parts []PartID, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".partition-*")
	if err != nil {
		return fmt.Errorf("creating partition file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := bufio.NewWriter(tmp)
	for _, p := range parts {
		if _, err := fmt.Fprintln(writer, p); err != nil {
			tmp.Close()
			return fmt.Errorf("writing partition file: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing partition file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing partition file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
