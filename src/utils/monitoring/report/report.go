package report

type Report struct {
	Run       *RunReport       `json:"run,omitempty"`
	DaoSyncer *DaoSyncerReport `json:"dao_syncer,omitempty"`
}
