package scriptapi

import (
	"reflect"

	"lab47.dev/fomod/pkg/fomod"
)

// Symbols returns the names visible to scripts through the fomod import,
// bound to this API instance.
func (a *API) Symbols() map[string]reflect.Value {
	return map[string]reflect.Value{
		// types
		"BaseScript":        reflect.ValueOf((*fomod.BaseScript)(nil)),
		"SelectOption":      reflect.ValueOf((*fomod.SelectOption)(nil)),
		"Version":           reflect.ValueOf((*fomod.Version)(nil)),
		"DialogResult":      reflect.ValueOf((*fomod.DialogResult)(nil)),
		"MessageBoxButtons": reflect.ValueOf((*fomod.MessageBoxButtons)(nil)),
		"MessageBoxIcon":    reflect.ValueOf((*fomod.MessageBoxIcon)(nil)),

		// constants
		"ButtonsOK":               reflect.ValueOf(fomod.ButtonsOK),
		"ButtonsOKCancel":         reflect.ValueOf(fomod.ButtonsOKCancel),
		"ButtonsAbortRetryIgnore": reflect.ValueOf(fomod.ButtonsAbortRetryIgnore),
		"ButtonsYesNoCancel":      reflect.ValueOf(fomod.ButtonsYesNoCancel),
		"ButtonsYesNo":            reflect.ValueOf(fomod.ButtonsYesNo),
		"ButtonsRetryCancel":      reflect.ValueOf(fomod.ButtonsRetryCancel),
		"IconNone":                reflect.ValueOf(fomod.IconNone),
		"IconError":               reflect.ValueOf(fomod.IconError),
		"IconQuestion":            reflect.ValueOf(fomod.IconQuestion),
		"IconWarning":             reflect.ValueOf(fomod.IconWarning),
		"IconInformation":         reflect.ValueOf(fomod.IconInformation),
		"DialogNone":              reflect.ValueOf(fomod.DialogNone),
		"DialogOK":                reflect.ValueOf(fomod.DialogOK),
		"DialogCancel":            reflect.ValueOf(fomod.DialogCancel),
		"DialogAbort":             reflect.ValueOf(fomod.DialogAbort),
		"DialogRetry":             reflect.ValueOf(fomod.DialogRetry),
		"DialogIgnore":            reflect.ValueOf(fomod.DialogIgnore),
		"DialogYes":               reflect.ValueOf(fomod.DialogYes),
		"DialogNo":                reflect.ValueOf(fomod.DialogNo),

		// functions
		"ParseVersion": reflect.ValueOf(fomod.ParseVersion),
		"GetLastError": reflect.ValueOf(a.GetLastError),

		"PerformBasicInstall":  reflect.ValueOf(a.PerformBasicInstall),
		"InstallFileFromMod":   reflect.ValueOf(a.InstallFileFromMod),
		"CopyDataFile":         reflect.ValueOf(a.CopyDataFile),
		"InstallFileFromFomod": reflect.ValueOf(a.InstallFileFromFomod),
		"GetModFileList":       reflect.ValueOf(a.GetModFileList),
		"GetFomodFileList":     reflect.ValueOf(a.GetFomodFileList),
		"GetFileFromMod":       reflect.ValueOf(a.GetFileFromMod),
		"GetFileFromFomod":     reflect.ValueOf(a.GetFileFromFomod),

		"GetExistingDataFileList": reflect.ValueOf(a.GetExistingDataFileList),
		"DataFileExists":          reflect.ValueOf(a.DataFileExists),
		"GetExistingDataFile":     reflect.ValueOf(a.GetExistingDataFile),
		"GenerateDataFile":        reflect.ValueOf(a.GenerateDataFile),

		"MessageBox":            reflect.ValueOf(a.MessageBox),
		"MessageBoxWithButtons": reflect.ValueOf(a.MessageBoxWithButtons),
		"ExtendedMessageBox":    reflect.ValueOf(a.ExtendedMessageBox),
		"Select":                reflect.ValueOf(a.Select),
		"SelectItems":           reflect.ValueOf(a.SelectItems),
		"ImageSelect":           reflect.ValueOf(a.ImageSelect),

		"GetModManagerVersion":     reflect.ValueOf(a.GetModManagerVersion),
		"GetFommVersion":           reflect.ValueOf(a.GetFommVersion),
		"GetGameVersion":           reflect.ValueOf(a.GetGameVersion),
		"GetFalloutVersion":        reflect.ValueOf(a.GetFalloutVersion),
		"GetScriptExtenderVersion": reflect.ValueOf(a.GetScriptExtenderVersion),
		"GetSkseVersion":           reflect.ValueOf(a.GetSkseVersion),
		"GetFoseVersion":           reflect.ValueOf(a.GetFoseVersion),
		"GetNvseVersion":           reflect.ValueOf(a.GetNvseVersion),
		"ScriptExtenderPresent":    reflect.ValueOf(a.ScriptExtenderPresent),

		"GetAllPlugins":       reflect.ValueOf(a.GetAllPlugins),
		"GetActivePlugins":    reflect.ValueOf(a.GetActivePlugins),
		"SetPluginActivation": reflect.ValueOf(a.SetPluginActivation),
		"SetPluginOrderIndex": reflect.ValueOf(a.SetPluginOrderIndex),
		"SetLoadOrder":        reflect.ValueOf(a.SetLoadOrder),

		"GetIniString":        reflect.ValueOf(a.GetIniString),
		"GetIniInt":           reflect.ValueOf(a.GetIniInt),
		"GetFalloutIniString": reflect.ValueOf(a.GetFalloutIniString),
		"GetFalloutIniInt":    reflect.ValueOf(a.GetFalloutIniInt),
		"GetPrefsIniString":   reflect.ValueOf(a.GetPrefsIniString),
		"GetPrefsIniInt":      reflect.ValueOf(a.GetPrefsIniInt),
		"EditIni":             reflect.ValueOf(a.EditIni),
		"EditFalloutINI":      reflect.ValueOf(a.EditFalloutINI),
	}
}
