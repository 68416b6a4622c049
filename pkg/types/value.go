package types

// Kind discriminates the tagged union a PrimeValue holds. Object type is
// immutable for a key's lifetime: re-typing a key requires delete+insert.
type Kind uint8

const (
	KindString Kind = iota
	KindList
	KindSet
	KindZSet
	KindHash
	KindJSON
	KindSearchDoc
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	case KindHash:
		return "hash"
	case KindJSON:
		return "json"
	case KindSearchDoc:
		return "searchdoc"
	default:
		return "unknown"
	}
}

// Encoding is the compact-representation discriminator a value carries.
// The runtime may upgrade a value's encoding in place when a threshold
// (element count, member size) is crossed; downgrading never happens.
type Encoding uint8

const (
	EncodingRaw Encoding = iota
	EncodingInt
	EncodingListPack
	EncodingIntSet
	EncodingDenseMap
)

// Flag bits stored alongside a PrimeValue.
type Flag uint8

const (
	// FlagExpire records that the companion expiration table holds an
	// entry for this key. Never trust this bit alone for liveness — it
	// must always agree with DbTable.Expires; see DESIGN.md's Open
	// Question decision on the expire/PERSIST race.
	FlagExpire Flag = 1 << iota
	// FlagExternal marks the payload as offloaded to tiered storage; the
	// in-memory Payload field holds a TieredRef instead of real data.
	FlagExternal
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// TieredRef is the in-memory stand-in for a payload moved to tiered
// (disk-backed) storage. No memory is charged to accounting beyond this
// struct once a value is external.
type TieredRef struct {
	FileID uint32
	Offset int64
	Length int64
}

// ZMember is one score/member pair of a sorted set.
type ZMember struct {
	Score  float64
	Member string
}

// PrimeValue is the tagged union over every value kind a key may hold.
// Exactly one of the Payload-shaped fields is meaningful, selected by Kind;
// this mirrors Design Notes §9's "closed sum types, tagged enum, exhaustive
// match" guidance rather than an open class hierarchy.
type PrimeValue struct {
	Kind     Kind
	Encoding Encoding
	Flags    Flag

	Str   string            // KindString
	List  []string          // KindList
	Set   map[string]struct{} // KindSet
	ZSet  []ZMember         // KindZSet, kept sorted by pkg/dispatch's binary-search insert
	Hash  map[string]string // KindHash
	JSON  any               // KindJSON, decoded document
	Doc   map[string]string // KindSearchDoc, field->value for index callbacks

	External *TieredRef // valid iff Flags.Has(FlagExternal)
}

// NewStringValue builds a PrimeValue holding a raw string.
func NewStringValue(s string) *PrimeValue {
	return &PrimeValue{Kind: KindString, Encoding: EncodingRaw, Str: s}
}

// SizeHint estimates in-memory bytes charged to accounting. External values
// cost nothing beyond the reference itself, per spec.
func (v *PrimeValue) SizeHint() int64 {
	if v.Flags.Has(FlagExternal) {
		return 32
	}
	switch v.Kind {
	case KindString:
		return int64(len(v.Str))
	case KindList:
		n := int64(0)
		for _, s := range v.List {
			n += int64(len(s))
		}
		return n
	case KindSet:
		n := int64(0)
		for s := range v.Set {
			n += int64(len(s))
		}
		return n
	case KindZSet:
		return int64(len(v.ZSet)) * 24
	case KindHash:
		n := int64(0)
		for k, val := range v.Hash {
			n += int64(len(k) + len(val))
		}
		return n
	default:
		return 64
	}
}
