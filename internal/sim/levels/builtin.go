package levels

import "foodcourt.dev/internal/sim/engine"

// builtinDefs are the stock levels. The YAML catalog under configs/levels
// may override any of them by id.
var builtinDefs = []Def{
	{
		ID:               "soda-trench",
		Name:             "Soda Trench",
		OrderSignalNames: []string{"COLA", "LEMONADE"},
		BaseKind:         "cup",
		ToppingInputs:    [][]string{{"cola", "lemonade"}},
		UnorderedOps:     []string{"cup"},
		Orders: []OrderDef{
			{
				Signals: []bool{true, false},
				Product: engine.Product{Kind: "cup", Ops: []engine.Operation{
					{Kind: engine.OpDispenseFluid, Topping: "cola"},
				}},
			},
			{
				Signals: []bool{false, true},
				Product: engine.Product{Kind: "cup", Ops: []engine.Operation{
					{Kind: engine.OpDispenseFluid, Topping: "lemonade"},
				}},
			},
			{
				Signals: []bool{true, true},
				Product: engine.Product{Kind: "cup", Ops: []engine.Operation{
					{Kind: engine.OpDispenseFluid, Topping: "cola", Topping2: "lemonade"},
				}},
			},
		},
		TickLimit: 1000,
	},
	{
		ID:               "breakside-grill",
		Name:             "Breakside Grill",
		OrderSignalNames: []string{"BURGER"},
		BaseKind:         "bun",
		SolidInputs:      [][]string{{"patty"}},
		StackWhitelist:   map[string][]string{"bun": {"patty"}},
		StackCapacity:    map[string]int{"bun": 1},
		Orders: []OrderDef{
			{
				Signals: []bool{true},
				Product: engine.Product{Kind: "bun", Parts: []engine.Product{
					{Kind: "patty", Ops: []engine.Operation{{Kind: engine.OpCookGrill}}},
				}},
			},
		},
		TickLimit: 1000,
	},
	{
		ID:               "two-twelve",
		Name:             "2Twelve",
		OrderSignalNames: []string{"EGGS", "BACON"},
		BaseKind:         "tray",
		SolidInputs:      [][]string{{"egg", "bacon"}},
		StackWhitelist:   map[string][]string{"tray": {"egg", "bacon"}},
		UnorderedParts:   []string{"tray"},
		Orders: []OrderDef{
			{
				Signals: []bool{true, false},
				Product: engine.Product{Kind: "tray", Parts: []engine.Product{
					{Kind: "egg", Ops: []engine.Operation{{Kind: engine.OpCookGrill}}},
				}},
			},
			{
				Signals: []bool{false, true},
				Product: engine.Product{Kind: "tray", Parts: []engine.Product{
					{Kind: "bacon", Ops: []engine.Operation{{Kind: engine.OpCookGrill}}},
				}},
			},
			{
				Signals: []bool{true, true},
				Product: engine.Product{Kind: "tray", Parts: []engine.Product{
					{Kind: "egg", Ops: []engine.Operation{{Kind: engine.OpCookGrill}}},
					{Kind: "bacon", Ops: []engine.Operation{{Kind: engine.OpCookGrill}}},
				}},
			},
		},
		TickLimit: 1000,
	},
}
