package build_info

// Set with -ldflags "-X github.com/dao-forum/reconciler/src/utils/build_info.Version=..."
var Version = "dev"
