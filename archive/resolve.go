package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/pithecene-io/dbviz/types"
)

// ResolveBatch resolves identity paths into a homogeneous batch of items.
//
//	container:      "<container>"
//	sub-container:  "<container>/<sub>"
//	leaf:           "<container>/<sub>/<path...>/<leaf>"
func ResolveBatch(ctx context.Context, model Model, kind types.ItemKind, ids []string) ([]types.Item, error) {
	items := make([]types.Item, 0, len(ids))
	for _, id := range ids {
		item, err := resolveOne(ctx, model, kind, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s %q: %w", kind, id, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func resolveOne(ctx context.Context, model Model, kind types.ItemKind, id string) (types.Item, error) {
	parts := strings.SplitN(strings.Trim(id, "/"), "/", 3)
	switch kind {
	case types.KindContainer:
		if len(parts) != 1 {
			return types.Item{}, fmt.Errorf("want <container>")
		}
		c, err := model.RetrieveContainer(ctx, parts[0])
		if err != nil {
			return types.Item{}, err
		}
		return types.ContainerItem(c), nil
	case types.KindSubContainer:
		if len(parts) != 2 {
			return types.Item{}, fmt.Errorf("want <container>/<sub-container>")
		}
		s, err := model.RetrieveSubContainer(ctx, parts[0], parts[1])
		if err != nil {
			return types.Item{}, err
		}
		return types.SubContainerItem(s), nil
	case types.KindLeaf:
		if len(parts) != 3 {
			return types.Item{}, fmt.Errorf("want <container>/<sub-container>/<path>")
		}
		l, err := model.RetrieveLeaf(ctx, parts[0], parts[1], parts[2])
		if err != nil {
			return types.Item{}, err
		}
		return types.LeafItem(l), nil
	default:
		return types.Item{}, fmt.Errorf("unknown item kind %q", kind)
	}
}
