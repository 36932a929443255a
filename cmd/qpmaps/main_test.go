package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mohammadijoo/WalkingPG_Go/pkg/generator"
)

func TestMatGrid_RowZeroOnTop(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	g := matGrid{m: m}
	c, r := g.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, 2, r)

	// grid row 1 is drawn highest and holds matrix row 0
	assert.Equal(t, 1.0, g.Y(0))
	assert.Equal(t, 4.0, g.Z(0, 0))
	assert.Equal(t, 3.0, g.Z(2, 1))
	assert.Equal(t, 2.0, g.X(2))
}

func TestWriteMatrixCSV_SkipsZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	require.NoError(t, writeMatrixCSV(path, mat.NewDense(2, 2, []float64{0, 1.5, 0, 0})))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"row", "col", "value"}, {"0", "1", "1.5"}}, rows)
}

func TestSaveHeatmap(t *testing.T) {
	dir := t.TempDir()

	drawn, err := saveHeatmap(filepath.Join(dir, "zero.png"), "zero", mat.NewDense(2, 2, nil))
	require.NoError(t, err)
	assert.False(t, drawn)

	drawn, err = saveHeatmap(filepath.Join(dir, "eye.png"), "eye", mat.NewDiagDense(3, []float64{1, 2, 3}))
	require.NoError(t, err)
	assert.True(t, drawn)
	_, err = os.Stat(filepath.Join(dir, "eye.png"))
	assert.NoError(t, err)
}

func TestMatrices_ShapesFollowLayout(t *testing.T) {
	g, err := generator.New(generator.DefaultConfig())
	require.NoError(t, err)

	width := g.PositionLayout().Width()
	for _, mo := range matrices(g) {
		_, c := mo.m.Dims()
		if mo.name == "hessian_orientation" {
			assert.Equal(t, g.OrientationLayout().Width(), c)
			continue
		}
		assert.Equal(t, width, c, mo.name)
	}
}
