package fn

import (
	"math"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func infoBuiltins() []Descriptor {
	return []Descriptor{
		// The type inspectors receive errors instead of propagating
		// them; that is their whole point.
		{Name: "ISBLANK", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsBlank},
		{Name: "ISNUMBER", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsNumber},
		{Name: "ISTEXT", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsText},
		{Name: "ISNONTEXT", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsNonText},
		{Name: "ISLOGICAL", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsLogical},
		{Name: "ISERROR", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsError},
		{Name: "ISERR", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsErr},
		{Name: "ISNA", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsNA},
		{Name: "ISREF", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsRef},
		{Name: "ISFORMULA", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnIsFormula},
		{Name: "ISEVEN", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, Impl: fnIsEven},
		{Name: "ISODD", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, Impl: fnIsOdd},

		{Name: "N", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnN},
		{Name: "NA", Category: CategoryInfo, MinArgs: 0, MaxArgs: 0, Impl: fnNA},
		{Name: "TYPE", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnType},
		{Name: "ERROR.TYPE", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnErrorType},
		{Name: "INFO", Category: CategoryInfo, MinArgs: 1, MaxArgs: 1, Volatile: true, Impl: fnInfo},
		{Name: "CELL", Category: CategoryInfo, MinArgs: 1, MaxArgs: 2, Volatile: true, ErrorArgs: true, Impl: fnCell},
	}
}

func fnIsBlank(c *Call) value.Value {
	return value.Bool(c.Scalar(0).IsBlank())
}

func fnIsNumber(c *Call) value.Value {
	return value.Bool(c.Scalar(0).IsNumber())
}

func fnIsText(c *Call) value.Value {
	return value.Bool(c.Scalar(0).IsText())
}

func fnIsNonText(c *Call) value.Value {
	return value.Bool(!c.Scalar(0).IsText())
}

func fnIsLogical(c *Call) value.Value {
	return value.Bool(c.Scalar(0).IsBool())
}

func fnIsError(c *Call) value.Value {
	return value.Bool(c.Scalar(0).IsError())
}

func fnIsErr(c *Call) value.Value {
	v := c.Scalar(0)
	return value.Bool(v.IsError() && v.Err() != value.ErrNA)
}

func fnIsNA(c *Call) value.Value {
	v := c.Scalar(0)
	return value.Bool(v.IsError() && v.Err() == value.ErrNA)
}

// fnIsRef inspects the raw argument: dereferencing would destroy the
// very thing being asked about.
func fnIsRef(c *Call) value.Value {
	return value.Bool(c.Arg(0).IsRef())
}

func fnIsFormula(c *Call) value.Value {
	arg := c.Arg(0)
	if !arg.IsRef() || len(arg.Areas()) != 1 {
		return value.Error(value.ErrValue)
	}
	a := arg.Areas()[0]
	if a.External() || !a.Sheets.Single() || !a.Rect.Single() {
		return value.Error(value.ErrValue)
	}
	key := ref.Key(a.Sheets.First, ref.Addr{Row: a.Rect.StartRow, Col: a.Rect.StartCol})
	return value.Bool(c.Env.HasFormula(key))
}

func fnIsEven(c *Call) value.Value {
	f, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Bool(math.Mod(math.Trunc(f), 2) == 0)
}

func fnIsOdd(c *Call) value.Value {
	f, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Bool(math.Mod(math.Trunc(f), 2) != 0)
}

// fnN folds a value to its numeric shadow: numbers stay, booleans
// become 0 or 1, everything textual becomes 0, errors keep identity.
func fnN(c *Call) value.Value {
	v := c.Scalar(0)
	switch {
	case v.IsError():
		return v
	case v.IsNumber():
		return v
	case v.IsBool():
		if v.Bool() {
			return value.Number(1)
		}
		return value.Number(0)
	}
	return value.Number(0)
}

func fnNA(*Call) value.Value {
	return value.Error(value.ErrNA)
}

func fnType(c *Call) value.Value {
	arg := c.Arg(0)
	if arg.IsArray() {
		return value.Number(64)
	}
	v := Deref(c.Env, arg)
	switch {
	case v.IsError():
		return value.Number(16)
	case v.IsText():
		return value.Number(2)
	case v.IsBool():
		return value.Number(4)
	case v.IsArray():
		return value.Number(64)
	}
	return value.Number(1)
}

func fnErrorType(c *Call) value.Value {
	v := c.Scalar(0)
	if !v.IsError() {
		return value.Error(value.ErrNA)
	}
	return value.Number(float64(v.Err()))
}

func fnInfo(c *Call) value.Value {
	key, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	s, ok := c.Env.Meta(strings.ToLower(key))
	if !ok {
		return value.Error(value.ErrValue)
	}
	return value.Text(s)
}

// fnCell serves the classic inspection keys for one cell, the origin
// when no reference is given. Format and width classes of key are not
// carried by the engine and yield #VALUE!.
func fnCell(c *Call) value.Value {
	kind, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	kind = strings.ToLower(kind)

	target := c.Env.Origin()
	if !c.Arg(1).IsMissing() {
		arg := c.Arg(1)
		if !arg.IsRef() || len(arg.Areas()) != 1 {
			return value.Error(value.ErrValue)
		}
		a := arg.Areas()[0]
		if a.External() {
			return value.Error(value.ErrValue)
		}
		target = a.TopLeft()
	}

	switch kind {
	case "address":
		return value.Text(ref.A1{
			Addr:   target.Addr(),
			AbsRow: true,
			AbsCol: true,
		}.String())
	case "row":
		return value.Number(float64(target.Row + 1))
	case "col":
		return value.Number(float64(target.Col + 1))
	case "contents":
		v := c.Env.CellValue(target)
		if v.IsBlank() {
			return value.Number(0)
		}
		return v
	case "type":
		v := c.Env.CellValue(target)
		switch {
		case v.IsBlank():
			return value.Text("b")
		case v.IsText():
			return value.Text("l")
		}
		return value.Text("v")
	case "filename":
		s, _ := c.Env.Meta("filename")
		return value.Text(s)
	}
	return value.Error(value.ErrValue)
}
