package model

// Models in dependency order, used for auto-migration of the sqlite store
func All() []interface{} {
	return []interface{}{
		&Organization{},
		&ContractSet{},
		&Proposal{},
		&Vote{},
		&Presale{},
		&Treasury{},
		&Stake{},
	}
}
