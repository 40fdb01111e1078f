package analyzer

// In-page scripts. Each is a function expression evaluated through
// page.Eval and returns a plain JSON object. Visibility follows the
// computed-style + bounding-rect convention so all probes agree on what
// "visible" means.

const modalProbeScript = `() => {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const dialogs = document.querySelectorAll(
		'dialog[open], [role="dialog"], [role="alertdialog"], .modal, .overlay, .popup'
	);
	const fileInputs = document.querySelectorAll('input[type="file"]');
	return {
		hasDialog: Array.from(dialogs).some(isVisible),
		hasFileChooser: Array.from(fileInputs).some(isVisible)
	};
}`

const elementProbeScript = `() => {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const interactable = 'a[href], button, input, select, textarea, [onclick], ' +
		'[role="button"], [role="link"], [role="checkbox"], [role="radio"], ' +
		'[role="menuitem"], [role="tab"], [tabindex]';
	let totalVisible = 0, totalInteractable = 0, missingAria = 0;
	for (const el of document.querySelectorAll('*')) {
		if (!isVisible(el)) continue;
		totalVisible++;
		if (!el.matches(interactable)) continue;
		totalInteractable++;
		const name = el.getAttribute('aria-label') ||
			el.getAttribute('aria-labelledby') ||
			el.getAttribute('title');
		const text = (el.textContent || '').trim();
		if (!name && !text) missingAria++;
	}
	return { totalVisible, totalInteractable, missingAria };
}`

// performanceScript walks the element tree once. Parameters: large-subtree
// descendant threshold, high z-index threshold, extreme z-index threshold.
const performanceScript = `() => {
	const largeSubtree = %d, highZ = %d, extremeZ = %d;
	const m = {
		totalElements: 0, maxDepth: 0, largeSubtrees: 0,
		clickable: 0, formElements: 0, disabledElements: 0,
		images: 0, scripts: 0, stylesheets: 0,
		fixedPosition: 0, highZIndex: 0, extremeZIndex: 0
	};
	const walk = (el, depth) => {
		m.totalElements++;
		if (depth > m.maxDepth) m.maxDepth = depth;
		const tag = el.tagName.toLowerCase();
		if (tag === 'img') m.images++;
		else if (tag === 'script') m.scripts++;
		else if (tag === 'style' || (tag === 'link' && el.rel === 'stylesheet')) m.stylesheets++;
		if (tag === 'form' || tag === 'input' || tag === 'select' || tag === 'textarea' || tag === 'button') {
			m.formElements++;
		}
		if (el.disabled === true) m.disabledElements++;
		if (tag === 'a' || tag === 'button' || el.onclick || el.getAttribute('role') === 'button') {
			m.clickable++;
		}
		const style = window.getComputedStyle(el);
		if (style.position === 'fixed') m.fixedPosition++;
		const z = parseInt(style.zIndex, 10);
		if (!isNaN(z) && z >= highZ) {
			m.highZIndex++;
			if (z >= extremeZ) m.extremeZIndex++;
		}
		let descendants = 0;
		for (const child of el.children) {
			descendants += 1 + walk(child, depth + 1);
		}
		if (descendants >= largeSubtree) m.largeSubtrees++;
		return descendants;
	};
	if (document.body) walk(document.body, 1);
	return m;
}`

const complexityScript = `() => {
	return {
		elementCount: document.getElementsByTagName('*').length,
		iframeCount: document.getElementsByTagName('iframe').length,
		formElementCount: document.querySelectorAll('input, select, textarea, button, form').length
	};
}`
