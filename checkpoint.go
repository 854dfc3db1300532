package stackgan

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// paramRecord Serialized value of a single learnable node
type paramRecord struct {
	Name  string
	Shape []int
	Data  []float64
}

// SaveParams Writes values of the nodes into file (gob). Nodes are identified by name.
func SaveParams(fname string, nodes gorgonia.Nodes) (err error) {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create checkpoint file")
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return EncodeParams(f, nodes)
}

// EncodeParams Writes values of the nodes into the writer
func EncodeParams(w io.Writer, nodes gorgonia.Nodes) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)
	records := make([]paramRecord, 0, len(nodes))
	for _, n := range nodes {
		data, err := nodeData(n)
		if err != nil {
			return err
		}
		records = append(records, paramRecord{
			Name:  n.Name(),
			Shape: []int(n.Shape().Clone()),
			Data:  data,
		})
	}
	if err := encoder.Encode(records); err != nil {
		return errors.Wrap(err, "Can't encode parameters")
	}
	return bw.Flush()
}

// LoadParams Reads values from file into the nodes
func LoadParams(fname string, nodes gorgonia.Nodes) error {
	f, err := os.Open(fname)
	if err != nil {
		return errors.Wrap(err, "Can't open checkpoint file")
	}
	defer f.Close()
	return DecodeParams(f, nodes)
}

// DecodeParams Reads values from the reader into the nodes.
// Values are copied into existing storage, so every graph sharing that storage sees them.
// Every node must be present in the stream with the same shape.
func DecodeParams(r io.Reader, nodes gorgonia.Nodes) error {
	var records []paramRecord
	if err := gob.NewDecoder(bufio.NewReader(r)).Decode(&records); err != nil {
		return errors.Wrap(err, "Can't decode parameters")
	}
	byName := make(map[string]paramRecord, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}
	for _, n := range nodes {
		rec, ok := byName[n.Name()]
		if !ok {
			return fmt.Errorf("Checkpoint has no parameter '%s'", n.Name())
		}
		if !n.Shape().Eq(tensor.Shape(rec.Shape)) {
			return &ShapeError{Op: "DecodeParams: " + n.Name(), Expected: rec.Shape, Actual: n.Shape().Clone()}
		}
		data, err := nodeData(n)
		if err != nil {
			return err
		}
		copy(data, rec.Data)
	}
	return nil
}

func nodeData(n *gorgonia.Node) ([]float64, error) {
	if n.Value() == nil {
		return nil, errors.Wrap(ErrUninitialized, fmt.Sprintf("node '%s' has no value", n.Name()))
	}
	data, ok := n.Value().Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("node '%s' holds %T, expected []float64", n.Name(), n.Value().Data())
	}
	return data, nil
}
