package browser

import "fmt"

// JSFillScript builds a page script that assigns a value directly and
// fires input and change events. Strategies use it where native typing
// is swallowed by the page's framework.
func JSFillScript(selector, value string) string {
	return fmt.Sprintf(jsFillJS, selector, value)
}

// extractFieldsJS walks the page (optionally scoped to a selector) and
// returns the form-field inventory consumed by GetDOM. The result shape
// matches models.DOMSnapshot minus the timestamp.
const extractFieldsJS = `(() => {
	const scopeSelector = %q;
	const formFieldsOnly = %t;
	const scope = scopeSelector ? document.querySelector(scopeSelector) : document;
	const out = { url: location.href, title: document.title, html: "", fields: [] };
	if (!scope) { return out; }

	const root = scope === document ? document.documentElement : scope;
	out.html = (root.outerHTML || "").slice(0, 4000);

	const typeFor = (el) => {
		const tag = el.tagName.toLowerCase();
		if (tag === "select") return "select";
		if (tag === "textarea") return "textarea";
		if (tag === "button") return "submit";
		const t = (el.getAttribute("type") || "text").toLowerCase();
		switch (t) {
			case "email": return "email";
			case "tel": return "tel";
			case "radio": return "radio";
			case "checkbox": return "checkbox";
			case "file": return "file";
			case "submit": case "button": case "image": return "submit";
			case "search": return "search";
			case "number": case "range": return "number";
			default: return "text";
		}
	};

	const cssPath = (el) => {
		if (el.id) return "#" + CSS.escape(el.id);
		const name = el.getAttribute("name");
		if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 5) {
			let part = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
				if (siblings.length > 1) part += ":nth-of-type(" + (siblings.indexOf(node) + 1) + ")";
			}
			parts.unshift(part);
			node = parent;
		}
		return parts.join(" > ");
	};

	const labelFor = (el) => {
		if (el.labels && el.labels.length) return el.labels[0].textContent.trim();
		if (el.getAttribute("aria-label")) return el.getAttribute("aria-label");
		const wrapped = el.closest("label");
		if (wrapped) return wrapped.textContent.trim().slice(0, 120);
		return "";
	};

	const selector = formFieldsOnly ? "input, select, textarea, button" : "*";
	for (const el of scope.querySelectorAll(selector)) {
		const tag = el.tagName.toLowerCase();
		if (!["input", "select", "textarea", "button"].includes(tag)) continue;
		if (tag === "input" && (el.type || "").toLowerCase() === "hidden") continue;
		const style = window.getComputedStyle(el);
		const visible = style.display !== "none" && style.visibility !== "hidden" && el.offsetParent !== null;
		const field = {
			locator: cssPath(el),
			name: el.getAttribute("name") || el.id || "",
			type: typeFor(el),
			label: labelFor(el),
			placeholder: el.getAttribute("placeholder") || "",
			required: el.required === true || el.getAttribute("aria-required") === "true",
			value: tag === "select" || tag === "textarea" || tag === "input" ? (el.value || "") : "",
			options: [],
			visible: visible,
			enabled: !el.disabled
		};
		if (tag === "select") {
			field.options = Array.from(el.options).map(o => o.textContent.trim());
		}
		out.fields.push(field);
	}
	return out;
})()`

// selectOptionJS picks a select option by value, label, or index, then
// dispatches input and change events so framework listeners fire.
const selectOptionJS = `(() => {
	const el = document.querySelector(%q);
	if (!el || el.tagName.toLowerCase() !== "select") return false;
	const byValue = %q, byLabel = %q, byIndex = %d;
	let matched = false;
	if (byValue !== "") {
		for (const o of el.options) { if (o.value === byValue) { el.value = o.value; matched = true; break; } }
	} else if (byLabel !== "") {
		for (const o of el.options) { if (o.textContent.trim() === byLabel) { el.value = o.value; matched = true; break; } }
	} else if (byIndex >= 0 && byIndex < el.options.length) {
		el.selectedIndex = byIndex; matched = true;
	}
	if (matched) {
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	}
	return matched;
})()`

// jsFillJS sets a value directly on the element and fires input and
// change events. Used by strategies that cannot rely on native typing.
const jsFillJS = `(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value") ||
		Object.getOwnPropertyDescriptor(window.HTMLTextAreaElement.prototype, "value");
	if (setter && setter.set) { setter.set.call(el, %[2]q); } else { el.value = %[2]q; }
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
})()`
