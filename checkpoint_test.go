package stackgan

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
)

func TestEncodeDecodeParams(t *testing.T) {
	cfg := testConfig()
	src, err := NewStage1Generator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)
	dst, err := NewStage1Generator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, snapshot(t, src.Learnables()), snapshot(t, dst.Learnables()), "independent initializations")

	var buf bytes.Buffer
	require.NoError(t, EncodeParams(&buf, src.Learnables()))

	// Graph sharing storage with dst must see loaded values too
	sharedDst, err := dst.Share(gorgonia.NewGraph())
	require.NoError(t, err)

	require.NoError(t, DecodeParams(&buf, dst.Learnables()))
	assert.Equal(t, snapshot(t, src.Learnables()), snapshot(t, dst.Learnables()))
	assert.Equal(t, snapshot(t, src.Learnables()), snapshot(t, sharedDst.Learnables()))
}

func TestDecodeParamsErrors(t *testing.T) {
	cfg := testConfig()
	stage1, err := NewStage1Generator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)
	stage2, err := NewStage2Generator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeParams(&buf, stage1.Learnables()))
	err = DecodeParams(bytes.NewReader(buf.Bytes()), stage2.Learnables())
	assert.Error(t, err, "stage-2 parameters are absent in stage-1 checkpoint")

	wider := cfg
	wider.Stage1Filters = 4
	other, err := NewStage1Generator(gorgonia.NewGraph(), wider)
	require.NoError(t, err)
	err = DecodeParams(bytes.NewReader(buf.Bytes()), other.Learnables())
	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)

	assert.Error(t, DecodeParams(bytes.NewReader([]byte("garbage")), stage1.Learnables()))
}

func TestSaveLoadParams(t *testing.T) {
	cfg := testConfig()
	src, err := NewStage2Discriminator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)
	dst, err := NewStage2Discriminator(gorgonia.NewGraph(), cfg)
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "disc.gob")
	require.NoError(t, SaveParams(fname, src.Learnables()))
	require.NoError(t, LoadParams(fname, dst.Learnables()))
	assert.Equal(t, snapshot(t, src.Learnables()), snapshot(t, dst.Learnables()))

	assert.Error(t, LoadParams(filepath.Join(t.TempDir(), "missing.gob"), dst.Learnables()))
}
