package discovery

// implicitRole 根据标签(必要时结合属性)推导元素的隐式 ARIA 角色。
// 无法推导时返回空串。
func implicitRole(tag string, attrs map[string]string) string {
	switch tag {
	case "button":
		return "button"
	case "a":
		if attrs["href"] != "" {
			return "link"
		}
		return ""
	case "input":
		switch attrs["type"] {
		case "button", "submit", "reset", "image":
			return "button"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "range":
			return "slider"
		case "search":
			return "searchbox"
		case "hidden":
			return ""
		default:
			return "textbox"
		}
	case "select":
		if _, multiple := attrs["multiple"]; multiple {
			return "listbox"
		}
		return "combobox"
	case "textarea":
		return "textbox"
	case "img":
		return "img"
	case "nav":
		return "navigation"
	case "main":
		return "main"
	case "form":
		return "form"
	case "table":
		return "table"
	case "ul", "ol":
		return "list"
	case "li":
		return "listitem"
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading"
	case "dialog":
		return "dialog"
	case "option":
		return "option"
	case "progress":
		return "progressbar"
	}
	return ""
}

// implicitRoleSources 返回可能携带给定隐式角色的标签列表,
// 供隐式角色策略圈定查询范围。推导仍以 implicitRole 为准。
func implicitRoleSources(role string) []string {
	switch role {
	case "button":
		return []string{"button", "input"}
	case "link":
		return []string{"a"}
	case "textbox":
		return []string{"input", "textarea"}
	case "checkbox", "radio", "slider", "searchbox":
		return []string{"input"}
	case "combobox", "listbox":
		return []string{"select"}
	case "navigation":
		return []string{"nav"}
	case "main":
		return []string{"main"}
	case "form":
		return []string{"form"}
	case "table":
		return []string{"table"}
	case "list":
		return []string{"ul", "ol"}
	case "listitem":
		return []string{"li"}
	case "img":
		return []string{"img"}
	case "heading":
		return []string{"h1", "h2", "h3", "h4", "h5", "h6"}
	case "dialog":
		return []string{"dialog"}
	case "option":
		return []string{"option"}
	case "progressbar":
		return []string{"progress"}
	}
	return nil
}
