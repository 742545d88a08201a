package model

import (
	"context"
	"errors"
	"testing"

	"github.com/tango-controls/tango-go/pkg/wire"
)

func TestAttributeBasics(t *testing.T) {
	meta := &AttributeMetadata{
		Name:     "long_scalar_w",
		Type:     wire.DataTypeInt32,
		Access:   AccessReadWrite,
		Default:  int32(42),
		MinValue: int32(0),
		MaxValue: int32(100),
	}

	attr := NewAttribute(meta)

	t.Run("Name", func(t *testing.T) {
		if attr.Name() != "long_scalar_w" {
			t.Errorf("expected name long_scalar_w, got %s", attr.Name())
		}
	})

	t.Run("DefaultValue", func(t *testing.T) {
		if attr.Value() != int32(42) {
			t.Errorf("expected default value 42, got %v", attr.Value())
		}
	})

	t.Run("Write", func(t *testing.T) {
		if err := attr.Write(context.Background(), int32(50)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if attr.Value() != int32(50) {
			t.Errorf("expected value 50, got %v", attr.Value())
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		err := attr.Write(context.Background(), int32(101))
		if !errors.Is(err, ErrAttributeOutOfRange) {
			t.Errorf("expected ErrAttributeOutOfRange, got %v", err)
		}
	})

	t.Run("WrongType", func(t *testing.T) {
		err := attr.Write(context.Background(), "fifty")
		if !errors.Is(err, ErrAttributeValueType) {
			t.Errorf("expected ErrAttributeValueType, got %v", err)
		}
	})

	t.Run("Read", func(t *testing.T) {
		av, err := attr.Read(context.Background())
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if av.Value != int32(50) || av.Quality != wire.QualityValid {
			t.Errorf("Read = %v/%v, want 50/VALID", av.Value, av.Quality)
		}
		if av.Time.IsZero() {
			t.Error("expected read time to be set")
		}
	})
}

func TestAttributeReadOnly(t *testing.T) {
	attr := NewAttribute(&AttributeMetadata{
		Name: "string_scalar",
		Type: wire.DataTypeString,
	})

	err := attr.Write(context.Background(), "test")
	if err != ErrAttributeNotWritable {
		t.Errorf("expected ErrAttributeNotWritable, got %v", err)
	}

	// SetValue works for read-only attributes
	if err := attr.SetValue("internal"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if attr.Value() != "internal" {
		t.Errorf("expected internal, got %v", attr.Value())
	}
}

func TestAttributeValueNotSet(t *testing.T) {
	attr := NewAttribute(&AttributeMetadata{Name: "empty", Type: wire.DataTypeFloat64})
	_, err := attr.Read(context.Background())
	if !errors.Is(err, ErrAttributeValueNotSet) {
		t.Errorf("expected ErrAttributeValueNotSet, got %v", err)
	}
}

func TestAttributeReadHook(t *testing.T) {
	attr := NewAttribute(&AttributeMetadata{Name: "double_scalar", Type: wire.DataTypeFloat64, Default: 1.0})

	fail := false
	attr.SetReadHook(func(ctx context.Context) (any, wire.Quality, error) {
		if fail {
			return nil, wire.QualityInvalid, wire.NewDevFailed("API_ReadFailed", "forced failure", "test")
		}
		return 7.5, wire.QualityAlarm, nil
	})

	av, err := attr.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if av.Value != 7.5 || av.Quality != wire.QualityAlarm {
		t.Errorf("Read = %v/%v, want 7.5/ALARM", av.Value, av.Quality)
	}

	fail = true
	_, err = attr.Read(context.Background())
	df, ok := wire.AsDevFailed(err)
	if !ok || df.Reason() != "API_ReadFailed" {
		t.Errorf("expected DevFailed API_ReadFailed, got %v", err)
	}
}

func TestAttributeSpectrum(t *testing.T) {
	attr := NewAttribute(&AttributeMetadata{
		Name:    "double_spectrum",
		Type:    wire.DataTypeFloat64,
		Format:  wire.FormatSpectrum,
		Access:  AccessReadWrite,
		MaxDimX: 4,
	})

	ctx := context.Background()
	if err := attr.Write(ctx, []float64{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	av, err := attr.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if av.DimX != 3 {
		t.Errorf("DimX = %d, want 3", av.DimX)
	}

	// The reading is a copy.
	av.Value.([]float64)[0] = 99
	if attr.Value().([]float64)[0] != 1 {
		t.Error("mutating a reading changed the stored value")
	}

	if err := attr.Write(ctx, 1.0); !errors.Is(err, ErrAttributeValueType) {
		t.Errorf("scalar write to spectrum: expected ErrAttributeValueType, got %v", err)
	}
	if err := attr.Write(ctx, []float64{1, 2, 3, 4, 5}); !errors.Is(err, ErrAttributeOutOfRange) {
		t.Errorf("oversized write: expected ErrAttributeOutOfRange, got %v", err)
	}
	if err := attr.Write(ctx, []any{uint64(1), 2.5}); err != nil {
		t.Errorf("generic numeric slice write failed: %v", err)
	}
}

func TestAccessString(t *testing.T) {
	tests := []struct {
		access Access
		want   string
	}{
		{AccessReadOnly, "R"},
		{AccessReadWrite, "RW"},
		{AccessWrite, "W"},
		{0, "-"},
	}
	for _, tt := range tests {
		if got := tt.access.String(); got != tt.want {
			t.Errorf("Access(%d).String() = %q, want %q", tt.access, got, tt.want)
		}
	}
}

func TestCommandInvoke(t *testing.T) {
	cmd := NewCommand(&CommandMetadata{Name: "DevDouble", InType: wire.DataTypeFloat64, OutType: wire.DataTypeFloat64},
		func(ctx context.Context, arg any) (any, error) {
			f, _ := wire.ToFloat64(arg)
			return f, nil
		})

	got, err := cmd.Invoke(context.Background(), 3.25)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != 3.25 {
		t.Errorf("Invoke = %v, want 3.25", got)
	}

	if _, err := cmd.Invoke(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for missing arg, got %v", err)
	}

	void := NewCommand(&CommandMetadata{Name: "Reset"}, func(ctx context.Context, arg any) (any, error) { return nil, nil })
	if _, err := void.Invoke(context.Background(), 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unexpected arg, got %v", err)
	}
}

func TestPipeRead(t *testing.T) {
	p := NewPipe("string_long_short_ro", func(ctx context.Context) (*wire.PipeBlob, error) {
		return &wire.PipeBlob{Elements: []wire.PipeElement{{Name: "FirstDE", Value: "The string"}}}, nil
	})
	blob, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if blob.Name != "string_long_short_ro" {
		t.Errorf("blob name = %q, want pipe name", blob.Name)
	}
	v, ok := blob.Element("firstde")
	if !ok || v != "The string" {
		t.Errorf("Element(firstde) = %v, %v", v, ok)
	}
}
