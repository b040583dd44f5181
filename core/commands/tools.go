package commands

import (
	"github.com/dkurenkov/veles/core/llms"
)

type openURLArgs struct {
	URL string `json:"url"`
}

type openPathArgs struct {
	Path string `json:"path"`
}

type runAppArgs struct {
	AppName string `json:"app_name"`
}

// Tools exposes the executor's actions as structured tool definitions for a
// generation backend.
func Tools(executor Executor) []llms.Tool {
	return []llms.Tool{
		llms.NewTool(ActionOpenURL,
			"Открывает ссылку в браузере пользователя",
			map[string]llms.ParameterBase{
				"url": {Type: "string", Description: "Полный адрес страницы, например https://youtube.com"},
			},
			func(args openURLArgs) (string, error) {
				return executor.OpenURL(args.URL), nil
			},
		),
		llms.NewTool(ActionOpenPath,
			"Открывает файл или папку на компьютере пользователя",
			map[string]llms.ParameterBase{
				"path": {Type: "string", Description: "Путь к файлу или папке, поддерживается ~"},
			},
			func(args openPathArgs) (string, error) {
				return executor.OpenPath(args.Path), nil
			},
		),
		llms.NewTool(ActionRunApp,
			"Запускает приложение на компьютере пользователя",
			map[string]llms.ParameterBase{
				"app_name": {Type: "string", Description: "Название приложения, например Telegram"},
			},
			func(args runAppArgs) (string, error) {
				return executor.RunApp(args.AppName), nil
			},
		),
	}
}
