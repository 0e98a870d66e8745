package enums

// ItemKind separates packaged retail goods from raw produce.
type ItemKind string

const (
	ItemKindRetail  ItemKind = "retail"
	ItemKindProduce ItemKind = "produce"
)

func (k ItemKind) IsValid() bool {
	return k == ItemKindRetail || k == ItemKindProduce
}
