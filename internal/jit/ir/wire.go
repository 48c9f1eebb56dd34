package ir

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/cpuext/internal/tensor"
)

// ErrMalformed is returned by Unmarshal for input that is not a valid
// graph encoding.
var ErrMalformed = errors.New("malformed graph encoding")

// Field numbers of the graph wire format.
//
//	Graph     { 1: Block }
//	Block     { 1: ValueDecl params, 2: Node nodes, 3: packed return ids }
//	ValueDecl { 1: id, 2: name, 3: Type }
//	Type      { 1: kind, 2: packed zigzag sizes, 3: sizes known, 4: class name }
//	Node      { 1: kind, 2: packed input ids, 3: ValueDecl outputs, 4: Block blocks, 5: IValue }
//	IValue    { 1: kind, 2: zigzag int, 3: fixed64 float, 4: bool, 5: packed zigzag ints, 6: Tensor }
//	Tensor    { 1: dtype, 2: layout, 3: packed shape, 4: raw bytes }
const (
	graphBlock = 1

	blockParams  = 1
	blockNodes   = 2
	blockReturns = 3

	declID   = 1
	declName = 2
	declType = 3

	typeKind  = 1
	typeSizes = 2
	typeKnown = 3
	typeName  = 4

	nodeKind     = 1
	nodeInputs   = 2
	nodeOutputs  = 3
	nodeBlocks   = 4
	nodeConstant = 5

	ivalueKind   = 1
	ivalueInt    = 2
	ivalueFloat  = 3
	ivalueBool   = 4
	ivalueInts   = 5
	ivalueTensor = 6

	tensorDType  = 1
	tensorLayout = 2
	tensorShape  = 3
	tensorData   = 4
)

// Marshal encodes the graph in protobuf wire format.
func Marshal(g *Graph) []byte {
	var b []byte
	b = protowire.AppendTag(b, graphBlock, protowire.BytesType)
	return protowire.AppendBytes(b, appendBlock(nil, g.block))
}

func appendBlock(b []byte, blk *Block) []byte {
	for _, v := range blk.Inputs() {
		b = protowire.AppendTag(b, blockParams, protowire.BytesType)
		b = protowire.AppendBytes(b, appendDecl(nil, v))
	}
	for _, n := range blk.Nodes() {
		b = protowire.AppendTag(b, blockNodes, protowire.BytesType)
		b = protowire.AppendBytes(b, appendNode(nil, n))
	}
	if outs := blk.Outputs(); len(outs) > 0 {
		b = protowire.AppendTag(b, blockReturns, protowire.BytesType)
		b = protowire.AppendBytes(b, packIDs(outs))
	}
	return b
}

func appendNode(b []byte, n *Node) []byte {
	b = protowire.AppendTag(b, nodeKind, protowire.BytesType)
	b = protowire.AppendString(b, string(n.kind))
	if len(n.inputs) > 0 {
		b = protowire.AppendTag(b, nodeInputs, protowire.BytesType)
		b = protowire.AppendBytes(b, packIDs(n.inputs))
	}
	for _, v := range n.outputs {
		b = protowire.AppendTag(b, nodeOutputs, protowire.BytesType)
		b = protowire.AppendBytes(b, appendDecl(nil, v))
	}
	for _, blk := range n.blocks {
		b = protowire.AppendTag(b, nodeBlocks, protowire.BytesType)
		b = protowire.AppendBytes(b, appendBlock(nil, blk))
	}
	if n.constant != nil {
		b = protowire.AppendTag(b, nodeConstant, protowire.BytesType)
		b = protowire.AppendBytes(b, appendIValue(nil, *n.constant))
	}
	return b
}

func appendDecl(b []byte, v *Value) []byte {
	b = protowire.AppendTag(b, declID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.id))
	if v.name != "" {
		b = protowire.AppendTag(b, declName, protowire.BytesType)
		b = protowire.AppendString(b, v.name)
	}
	b = protowire.AppendTag(b, declType, protowire.BytesType)
	return protowire.AppendBytes(b, appendType(nil, v.typ))
}

func appendType(b []byte, t Type) []byte {
	b = protowire.AppendTag(b, typeKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Kind))
	if t.Sizes != nil {
		b = protowire.AppendTag(b, typeKnown, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
		if len(t.Sizes) > 0 {
			b = protowire.AppendTag(b, typeSizes, protowire.BytesType)
			b = protowire.AppendBytes(b, packZigZag(t.Sizes))
		}
	}
	if t.Name != "" {
		b = protowire.AppendTag(b, typeName, protowire.BytesType)
		b = protowire.AppendString(b, t.Name)
	}
	return b
}

func appendIValue(b []byte, v IValue) []byte {
	b = protowire.AppendTag(b, ivalueKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Kind))
	switch v.Kind {
	case IntKind:
		b = protowire.AppendTag(b, ivalueInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
	case FloatKind:
		b = protowire.AppendTag(b, ivalueFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.Float))
	case BoolKind:
		b = protowire.AppendTag(b, ivalueBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.Bool))
	case IntListKind:
		b = protowire.AppendTag(b, ivalueInts, protowire.BytesType)
		b = protowire.AppendBytes(b, packZigZag(v.Ints))
	case TensorKind:
		if v.Tensor != nil {
			b = protowire.AppendTag(b, ivalueTensor, protowire.BytesType)
			b = protowire.AppendBytes(b, appendTensor(nil, v.Tensor))
		}
	}
	return b
}

func appendTensor(b []byte, t *tensor.RawTensor) []byte {
	b = protowire.AppendTag(b, tensorDType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DType()))
	b = protowire.AppendTag(b, tensorLayout, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Layout()))
	var shape []byte
	for _, d := range t.Shape() {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	b = protowire.AppendTag(b, tensorShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)
	b = protowire.AppendTag(b, tensorData, protowire.BytesType)
	return protowire.AppendBytes(b, t.Data())
}

func packIDs(vs []*Value) []byte {
	var b []byte
	for _, v := range vs {
		b = protowire.AppendVarint(b, uint64(v.id))
	}
	return b
}

func packZigZag(xs []int64) []byte {
	b := []byte{}
	for _, x := range xs {
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(x))
	}
	return b
}

// Unmarshal decodes a graph produced by Marshal. Value ids and names are
// preserved.
func Unmarshal(data []byte) (*Graph, error) {
	d := &decoder{g: NewGraph(), values: make(map[int]*Value)}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		if num != graphBlock {
			return nil
		}
		body, err := bytesField(typ, field)
		if err != nil {
			return err
		}
		return d.readBlock(d.g.block, body)
	})
	if err != nil {
		return nil, err
	}
	return d.g, nil
}

// decoder rebuilds a graph, resolving value references by id. Values must be
// declared before they are used, which Marshal guarantees.
type decoder struct {
	g      *Graph
	values map[int]*Value
}

func (d *decoder) readBlock(blk *Block, data []byte) error {
	var returns []uint64
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		body, err := bytesField(typ, field)
		if err != nil {
			return err
		}
		switch num {
		case blockParams:
			return d.readDecl(blk.param, body)
		case blockNodes:
			return d.readNode(blk, body)
		case blockReturns:
			ids, err := unpackVarints(body)
			returns = append(returns, ids...)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range returns {
		v, err := d.lookup(id)
		if err != nil {
			return err
		}
		blk.RegisterOutput(v)
	}
	return nil
}

func (d *decoder) readNode(blk *Block, data []byte) error {
	n := &Node{graph: d.g}
	var blocks [][]byte
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		body, err := bytesField(typ, field)
		if err != nil {
			return err
		}
		switch num {
		case nodeKind:
			n.kind = Kind(body)
		case nodeInputs:
			ids, err := unpackVarints(body)
			if err != nil {
				return err
			}
			for _, id := range ids {
				v, err := d.lookup(id)
				if err != nil {
					return err
				}
				n.AddInput(v)
			}
		case nodeOutputs:
			return d.readDecl(n, body)
		case nodeBlocks:
			blocks = append(blocks, body)
		case nodeConstant:
			c, err := readIValue(body)
			if err != nil {
				return err
			}
			n.constant = &c
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n.kind == "" {
		return errors.Wrap(ErrMalformed, "node without kind")
	}
	n.InsertBefore(blk.ret)
	for _, body := range blocks {
		if err := d.readBlock(n.AddBlock(), body); err != nil {
			return errors.Wrapf(err, "block of %s", n.kind)
		}
	}
	return nil
}

// readDecl appends a declared value to the outputs of n.
func (d *decoder) readDecl(n *Node, data []byte) error {
	v := &Value{node: n, offset: len(n.outputs)}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case declID:
			id, err := varintField(typ, field)
			v.id = int(id)
			return err
		case declName:
			body, err := bytesField(typ, field)
			v.name = string(body)
			return err
		case declType:
			body, err := bytesField(typ, field)
			if err != nil {
				return err
			}
			v.typ, err = readType(body)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, dup := d.values[v.id]; dup || v.id <= 0 {
		return errors.Wrapf(ErrMalformed, "invalid value id %d", v.id)
	}
	d.values[v.id] = v
	d.g.nextID = max(d.g.nextID, v.id)
	n.outputs = append(n.outputs, v)
	return nil
}

func (d *decoder) lookup(id uint64) (*Value, error) {
	v, ok := d.values[int(id)]
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "reference to undeclared value %d", id)
	}
	return v, nil
}

func readType(data []byte) (Type, error) {
	var t Type
	known := false
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case typeKind:
			k, err := varintField(typ, field)
			t.Kind = TypeKind(k)
			return err
		case typeKnown:
			k, err := varintField(typ, field)
			known = protowire.DecodeBool(k)
			return err
		case typeSizes:
			body, err := bytesField(typ, field)
			if err != nil {
				return err
			}
			t.Sizes, err = unpackZigZag(body)
			return err
		case typeName:
			body, err := bytesField(typ, field)
			t.Name = string(body)
			return err
		}
		return nil
	})
	if known && t.Sizes == nil {
		t.Sizes = []int64{}
	}
	return t, err
}

func readIValue(data []byte) (IValue, error) {
	var v IValue
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case ivalueKind:
			k, err := varintField(typ, field)
			v.Kind = TypeKind(k)
			return err
		case ivalueInt:
			x, err := varintField(typ, field)
			v.Int = protowire.DecodeZigZag(x)
			return err
		case ivalueFloat:
			if typ != protowire.Fixed64Type {
				return errors.Wrap(ErrMalformed, "float constant is not fixed64")
			}
			x, n := protowire.ConsumeFixed64(field)
			if n < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
			}
			v.Float = math.Float64frombits(x)
		case ivalueBool:
			x, err := varintField(typ, field)
			v.Bool = protowire.DecodeBool(x)
			return err
		case ivalueInts:
			body, err := bytesField(typ, field)
			if err != nil {
				return err
			}
			v.Ints, err = unpackZigZag(body)
			return err
		case ivalueTensor:
			body, err := bytesField(typ, field)
			if err != nil {
				return err
			}
			v.Tensor, err = readTensor(body)
			return err
		}
		return nil
	})
	if v.Kind == IntListKind && v.Ints == nil {
		v.Ints = []int64{}
	}
	return v, err
}

func readTensor(data []byte) (*tensor.RawTensor, error) {
	var (
		dtype  tensor.DataType
		layout tensor.Layout
		shape  = tensor.Shape{}
		raw    []byte
	)
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case tensorDType:
			x, err := varintField(typ, field)
			dtype = tensor.DataType(x)
			return err
		case tensorLayout:
			x, err := varintField(typ, field)
			layout = tensor.Layout(x)
			return err
		case tensorShape:
			body, err := bytesField(typ, field)
			if err != nil {
				return err
			}
			dims, err := unpackVarints(body)
			for _, d := range dims {
				shape = append(shape, int(d))
			}
			return err
		case tensorData:
			body, err := bytesField(typ, field)
			raw = body
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch dtype {
	case tensor.Float32, tensor.Float64, tensor.BFloat16, tensor.Float16, tensor.Int64:
	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown tensor dtype %d", int(dtype))
	}
	if layout != tensor.Planar && layout != tensor.ChannelsLast {
		return nil, errors.Wrapf(ErrMalformed, "unknown tensor layout %d", int(layout))
	}
	// The element count must fit the data before any buffer is sized from it.
	limit := len(raw) / dtype.Size()
	count := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.Wrapf(ErrMalformed, "negative tensor dimension in %v", shape)
		}
		if d > 0 && count > limit/d {
			return nil, errors.Wrapf(ErrMalformed, "tensor data has %d bytes, too few for shape %v", len(raw), shape)
		}
		count *= d
	}

	t, err := tensor.NewRaw(shape, dtype, layout)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if len(raw) != t.ByteSize() {
		return nil, errors.Wrapf(ErrMalformed, "tensor data has %d bytes, shape %v needs %d", len(raw), shape, t.ByteSize())
	}
	copy(t.Data(), raw)
	return t, nil
}

// forEachField calls fn for every top-level field of a message. field holds
// the encoded value without its tag.
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		data = data[n:]
		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(m).Error())
		}
		if err := fn(num, typ, data[:m]); err != nil {
			return err
		}
		data = data[m:]
	}
	return nil
}

func bytesField(typ protowire.Type, field []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, errors.Wrapf(ErrMalformed, "expected length-delimited field, got wire type %d", typ)
	}
	b, n := protowire.ConsumeBytes(field)
	if n < 0 {
		return nil, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
	}
	return b, nil
}

func varintField(typ protowire.Type, field []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, errors.Wrapf(ErrMalformed, "expected varint field, got wire type %d", typ)
	}
	x, n := protowire.ConsumeVarint(field)
	if n < 0 {
		return 0, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
	}
	return x, nil
}

func unpackVarints(data []byte) ([]uint64, error) {
	var out []uint64
	for len(data) > 0 {
		x, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		out = append(out, x)
		data = data[n:]
	}
	return out, nil
}

func unpackZigZag(data []byte) ([]int64, error) {
	raw, err := unpackVarints(data)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(raw))
	for i, x := range raw {
		out[i] = protowire.DecodeZigZag(x)
	}
	return out, nil
}
